package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/workflow-station/task-engine/internal/application/service"
	"github.com/workflow-station/task-engine/internal/config"
	"github.com/workflow-station/task-engine/internal/domain/assignment"
	"github.com/workflow-station/task-engine/internal/infrastructure/external/admincenter"
	"github.com/workflow-station/task-engine/internal/infrastructure/external/workflowengine"
	"github.com/workflow-station/task-engine/internal/infrastructure/persistence/repository"
	httpserver "github.com/workflow-station/task-engine/internal/interfaces/http"
	"github.com/workflow-station/task-engine/pkg/database"
	"github.com/workflow-station/task-engine/pkg/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting task engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	taskRepo := repository.NewTaskRepository(db.DB, logger)
	ruleRepo := repository.NewDelegationRuleRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// Initialize external collaborators
	directory := admincenter.NewClient(admincenter.Config{
		BaseURL: cfg.AdminCenter.BaseURL,
		Timeout: cfg.AdminCenter.Timeout,
	}, logger)

	engineClient := workflowengine.NewClient(workflowengine.Config{
		BaseURL: cfg.WorkflowEngine.BaseURL,
		Timeout: cfg.WorkflowEngine.Timeout,
	}, logger)

	// Initialize application services
	serviceLogger := &zapLoggerAdapter{logger: logger}
	resolver := assignment.NewResolver(directory)

	delegationService := service.NewDelegationService(ruleRepo, auditRepo, serviceLogger)
	queryService := service.NewTaskQueryService(taskRepo, delegationService, directory, serviceLogger)
	processService := service.NewTaskProcessService(
		taskRepo, delegationService, resolver, directory, auditRepo, engineClient, serviceLogger)
	exportService := service.NewTaskExportService(queryService, serviceLogger)

	// Initialize HTTP server
	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		queryService,
		processService,
		delegationService,
		exportService,
		serviceLogger,
	)

	// Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// zapLoggerAdapter adapts zap.Logger to the service and http Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
