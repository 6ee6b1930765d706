package services

import (
	"k8s.io/client-go/kubernetes"

	"github.com/mailfleet/tokenstack/config"
	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/logger"
	"github.com/mailfleet/tokenstack/internal/repository"
	"github.com/mailfleet/tokenstack/services/accounts"
	"github.com/mailfleet/tokenstack/services/events"
	"github.com/mailfleet/tokenstack/services/history"
	"github.com/mailfleet/tokenstack/services/provider"
	"github.com/mailfleet/tokenstack/services/refresher"
	"github.com/mailfleet/tokenstack/services/scheduler"
)

type Services struct {
	EventPublisher   interfaces.EventPublisher
	AccountsService  *accounts.Service
	HistoryService   *history.Service
	RefresherService *refresher.Service
	SchedulerService *scheduler.Service
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, k8s kubernetes.Interface) (*Services, error) {
	// events are optional; without a broker URL runs simply skip publishing
	var publisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}

		p, err := events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
		publisher = p
	}

	historyService := history.NewService(log, repos.RefreshLogRepository)

	refresherService := refresher.NewService(
		log,
		repos.AccountRepository,
		repos.RefreshLogRepository,
		provider.NewClient(cfg.ProviderConfig),
		historyService,
		publisher,
		refresher.NewProgressHub(),
	)

	services := Services{
		EventPublisher:   publisher,
		AccountsService:  accounts.NewService(log, repos.AccountRepository),
		HistoryService:   historyService,
		RefresherService: refresherService,
		SchedulerService: scheduler.NewService(cfg, log, repos.SchedulePolicyRepository, refresherService, k8s),
	}

	return &services, nil
}
