package mocks

//go:generate mockgen -destination=./mock_pricefeed.go -package=mocks github.com/rxtech-lab/nsplit-trading/pkg/pricefeed Feed
//go:generate mockgen -destination=./mock_store.go -package=mocks github.com/rxtech-lab/nsplit-trading/internal/store Store
//go:generate mockgen -destination=./mock_executor.go -package=mocks github.com/rxtech-lab/nsplit-trading/internal/execution Executor
