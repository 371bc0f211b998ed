// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/cryptodash/internal/config"
	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

const componentPrefix = "c_"

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(ctx context.Context, cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("Ошибка записи в InfluxDB", zap.Error(err))
		}
	}()

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: writeAPI,
		bucket:   cfg.Bucket,
	}, nil
}

// Close сбрасывает буфер и закрывает соединение
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// candlePoint точка свечи
func candlePoint(candle *models.Candle) *write.Point {
	return influxdb2.NewPoint(
		"candles",
		map[string]string{
			"symbol":   candle.Symbol,
			"interval": candle.Interval,
		},
		map[string]interface{}{
			"open":   candle.Open,
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		},
		candle.OpenTime,
	)
}

// write пишет точки и сбрасывает буфер; ошибки записи приходят в канал Errors
func (s *InfluxDBStorage) write(points ...*write.Point) error {
	for _, p := range points {
		s.writeAPI.WritePoint(p)
	}
	s.writeAPI.Flush()
	return nil
}

// fluxQuery последние limit строк измерения, новыми первыми.
// Фильтры по тегам применяются в порядке tags (пары имя, значение).
func fluxQuery(bucket, measurement, start string, limit int, tags ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", bucket)
	fmt.Fprintf(&b, "\t|> range(start: %s)\n", start)
	fmt.Fprintf(&b, "\t|> filter(fn: (r) => r._measurement == %q)\n", measurement)
	for i := 0; i+1 < len(tags); i += 2 {
		fmt.Fprintf(&b, "\t|> filter(fn: (r) => r.%s == %q)\n", tags[i], tags[i+1])
	}
	b.WriteString("\t|> pivot(rowKey:[\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")\n")
	b.WriteString("\t|> group()\n")
	b.WriteString("\t|> sort(columns: [\"_time\"], desc: true)\n")
	fmt.Fprintf(&b, "\t|> limit(n: %d)\n", limit)
	return b.String()
}

// queryRecords выполняет запрос и переводит каждую строку в T
func queryRecords[T any](ctx context.Context, s *InfluxDBStorage, what, flux string, convert func(*query.FluxRecord) T) ([]T, error) {
	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса %s: %w", what, err)
	}
	defer result.Close()

	var out []T
	for result.Next() {
		out = append(out, convert(result.Record()))
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", what, result.Err())
	}
	return out, nil
}

// SaveCandles сохраняет пачку свечей
func (s *InfluxDBStorage) SaveCandles(_ context.Context, candles []*models.Candle) error {
	points := make([]*write.Point, 0, len(candles))
	for _, candle := range candles {
		points = append(points, candlePoint(candle))
	}
	return s.write(points...)
}

// GetCandles последние limit свечей, старые первыми
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	start := fmt.Sprintf("-%ds", int(lookback(interval, limit).Seconds()))
	q := fluxQuery(s.bucket, "candles", start, limit, "symbol", symbol, "interval", interval)
	step := getIntervalDuration(interval)

	candles, err := queryRecords(ctx, s, "свечей", q, func(r *query.FluxRecord) *models.Candle {
		return &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  r.Time(),
			Open:      floatValue(r.ValueByKey("open")),
			High:      floatValue(r.ValueByKey("high")),
			Low:       floatValue(r.ValueByKey("low")),
			Close:     floatValue(r.ValueByKey("close")),
			Volume:    floatValue(r.ValueByKey("volume")),
			CloseTime: r.Time().Add(step),
		}
	})
	if err != nil {
		return nil, err
	}

	// Запрос отдает новые первыми, индикаторам нужен прямой порядок
	slices.Reverse(candles)
	return candles, nil
}

// SaveFundingRate сохраняет ставку финансирования
func (s *InfluxDBStorage) SaveFundingRate(_ context.Context, rate *models.FundingRate) error {
	return s.write(influxdb2.NewPoint(
		"funding_rates",
		map[string]string{"symbol": rate.Symbol},
		map[string]interface{}{
			"rate":         rate.Rate,
			"next_funding": rate.NextFundingTime.UnixMilli(),
		},
		rate.Timestamp,
	))
}

// GetFundingRates история ставок за две недели, новыми первыми
func (s *InfluxDBStorage) GetFundingRates(ctx context.Context, symbol string, limit int) ([]*models.FundingRate, error) {
	q := fluxQuery(s.bucket, "funding_rates", "-14d", limit, "symbol", symbol)
	return queryRecords(ctx, s, "ставок финансирования", q, func(r *query.FluxRecord) *models.FundingRate {
		next, _ := r.ValueByKey("next_funding").(int64)
		return &models.FundingRate{
			Symbol:          symbol,
			Rate:            floatValue(r.ValueByKey("rate")),
			Timestamp:       r.Time(),
			NextFundingTime: time.UnixMilli(next),
		}
	})
}

// SaveSignal сохраняет сигнал, компоненты пишутся отдельными полями
func (s *InfluxDBStorage) SaveSignal(_ context.Context, signal *models.SignalResult) error {
	fields := map[string]interface{}{
		"type":       string(signal.Signal.Type),
		"confidence": signal.Signal.Confidence,
		"price":      signal.CurrentPrice,
	}
	for name, v := range signal.Components {
		fields[componentPrefix+name] = v
	}

	return s.write(influxdb2.NewPoint(
		"signals",
		map[string]string{"symbol": signal.Symbol, "interval": signal.Interval},
		fields,
		signal.Timestamp,
	))
}

// GetSignalHistory сигналы за 30 дней, новыми первыми
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.SignalResult, error) {
	q := fluxQuery(s.bucket, "signals", "-30d", limit, "symbol", symbol)
	return queryRecords(ctx, s, "истории сигналов", q, signalFromRecord(symbol))
}

func signalFromRecord(symbol string) func(*query.FluxRecord) *models.SignalResult {
	return func(r *query.FluxRecord) *models.SignalResult {
		signalType, _ := r.ValueByKey("type").(string)
		interval, _ := r.ValueByKey("interval").(string)

		signal := &models.SignalResult{
			Symbol:    symbol,
			Interval:  interval,
			Timestamp: r.Time(),
			Signal: models.Signal{
				Type:       models.SignalType(signalType),
				Confidence: floatValue(r.ValueByKey("confidence")),
			},
			CurrentPrice: floatValue(r.ValueByKey("price")),
			Components:   make(map[string]float64),
		}
		for key, v := range r.Values() {
			if name, ok := strings.CutPrefix(key, componentPrefix); ok {
				signal.Components[name] = floatValue(v)
			}
		}
		return signal
	}
}

// SaveFeedStats сохраняет снимок статистики ленты
func (s *InfluxDBStorage) SaveFeedStats(_ context.Context, stats models.FeedStats, at time.Time) error {
	return s.write(influxdb2.NewPoint(
		"feed_stats",
		map[string]string{},
		map[string]interface{}{
			"buy_volume":   stats.BuyVolume,
			"sell_volume":  stats.SellVolume,
			"cvd":          stats.CVD(),
			"large_trades": stats.LargeTradesCount,
			"liquidations": stats.LiquidationsCount,
		},
		at,
	))
}

// floatValue значение поля как float64, числа других типов приводятся
func floatValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}
