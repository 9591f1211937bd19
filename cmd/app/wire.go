//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/xray-diagnosis/internal/bootstrap"
	"github.com/yanqian/xray-diagnosis/internal/domain/auth"
	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
	"github.com/yanqian/xray-diagnosis/internal/infra/config"
	httpiface "github.com/yanqian/xray-diagnosis/internal/interface/http"
	"github.com/yanqian/xray-diagnosis/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		bootstrap.NewResources,
		provideDiagnosisConfig,
		provideAnalyzer,
		provideAuthConfig,
		provideAccountRepository,
		provideReportStore,
		provideImageStorage,
		diagnosis.NewService,
		auth.NewService,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
