// Package schema renders configuration structs as JSON schema and inspects their tags.
package schema

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// ToJSONSchema converts a struct to a JSON schema.
func ToJSONSchema[T any](t T) (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(t)

	jsonSchemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(jsonSchemaBytes), nil
}

// SecretFields returns the yaml names of the fields tagged keychain:"true".
// Nested structs are walked and reported as dotted paths.
func SecretFields[T any](t T) []string {
	return secretFields(reflect.TypeOf(t), "")
}

func secretFields(typ reflect.Type, prefix string) []string {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	if typ.Kind() != reflect.Struct {
		return nil
	}

	var fields []string
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		name := fieldName(field)
		if prefix != "" {
			name = prefix + "." + name
		}

		if field.Tag.Get("keychain") == "true" {
			fields = append(fields, name)

			continue
		}

		if field.Type.Kind() == reflect.Struct || (field.Type.Kind() == reflect.Pointer && field.Type.Elem().Kind() == reflect.Struct) {
			fields = append(fields, secretFields(field.Type, name)...)
		}
	}

	return fields
}

func fieldName(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag == "" {
		return field.Name
	}

	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return field.Name
	}

	return name
}
