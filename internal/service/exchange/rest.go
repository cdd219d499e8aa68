package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"OracleFeed/internal/domain/models"
	drepo "OracleFeed/internal/domain/repository"
	phttp "OracleFeed/pkg/http"
	"OracleFeed/pkg/logger"
	"OracleFeed/pkg/util"
)

// RESTStream implements a MarketStream by polling a ticker endpoint. Slower
// venues (forex and commodity quote APIs) expose REST only, so the poller
// presents the same stream contract the WebSocket adapter does.
type RESTStream struct {
	name         string
	url          string
	pairs        []string
	pollInterval time.Duration
	client       *phttp.Client
	logger       *logger.Logger

	mu        sync.Mutex
	connected bool
}

// tickerResponse is the expected poll payload: one quote per pair.
type tickerResponse struct {
	Ticks []struct {
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		Volume    float64 `json:"volume"`
		Timestamp int64   `json:"timestamp"`
	} `json:"ticks"`
}

// NewRESTStream creates a polling MarketStream.
func NewRESTStream(name, url string, pairs []string, pollInterval time.Duration, lgr *logger.Logger) drepo.MarketStream {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &RESTStream{
		name:         name,
		url:          url,
		pairs:        pairs,
		pollInterval: pollInterval,
		client:       phttp.NewClient(phttp.WithTimeout(10 * time.Second)),
		logger:       lgr,
	}
}

func (s *RESTStream) Name() string { return s.name }

// Connect probes the endpoint once so misconfiguration fails at startup.
func (s *RESTStream) Connect(ctx context.Context) error {
	if err := s.poll(ctx, nil); err != nil {
		return fmt.Errorf("%s probe: %w", s.name, err)
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Info("exchange poller ready", logger.String("exchange", s.name))
	}
	return nil
}

// Subscribe is a no-op; the pair list is part of every poll.
func (s *RESTStream) Subscribe(ctx context.Context) error { return nil }

// Read polls the endpoint on the configured interval and streams updates.
func (s *RESTStream) Read(ctx context.Context) (<-chan *models.PriceUpdate, <-chan error) {
	updates := make(chan *models.PriceUpdate, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(updates)
		defer close(errs)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.poll(ctx, updates); err != nil {
					select {
					case errs <- fmt.Errorf("%s poll: %w", s.name, err):
					default:
					}
				}
			}
		}
	}()

	return updates, errs
}

func (s *RESTStream) poll(ctx context.Context, out chan<- *models.PriceUpdate) error {
	var resp tickerResponse
	err := s.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodGet,
		URL:    s.url,
		QueryParams: map[string][]string{
			"symbols": {strings.Join(s.pairs, ",")},
		},
	}, &resp)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	for _, t := range resp.Ticks {
		if t.Symbol == "" || t.Price <= 0 {
			continue
		}
		ts := t.Timestamp
		if ts <= 0 {
			ts = util.NowMillis()
		}
		u := &models.PriceUpdate{
			Symbol:     util.NormalizePair(t.Symbol),
			Price:      t.Price,
			Timestamp:  ts,
			Source:     s.name,
			Volume:     t.Volume,
			Confidence: 1,
		}
		select {
		case out <- u:
		default:
		}
	}
	return nil
}

// Reconnect re-probes the endpoint.
func (s *RESTStream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	return s.Connect(ctx)
}

// Close stops reporting as connected; the poll loop exits with its context.
func (s *RESTStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *RESTStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
