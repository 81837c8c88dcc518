package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Fetcher --dir ../usecase --output usecase --outpkg usecasemock --filename fetcher_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Sink --dir ../usecase --output usecase --outpkg usecasemock --filename sink_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name RunLocker --dir ../usecase --output usecase --outpkg usecasemock --filename run_locker_mock.go
