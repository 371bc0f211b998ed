// Package news собирает новости, оценивает их тональность и строит сводный индекс настроений.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// Тональность новости
const (
	Bullish = "bullish"
	Bearish = "bearish"
	Neutral = "neutral"
)

// maxPerSource сколько новостей брать из одного источника
const maxPerSource = 10

var (
	bullishWords = []string{"surge", "rally", "bullish", "gains", "rises", "growth", "adoption", "milestone", "record", "inflows"}
	bearishWords = []string{"crash", "plunge", "bearish", "drop", "falls", "correction", "sell-off", "decline", "outflows"}
)

// symbolKeywords порядок важен: символы в результате идут в порядке первого совпадения
var symbolKeywords = []struct {
	word   string
	symbol string
}{
	{"BITCOIN", "BTC/USDT"}, {"BTC", "BTC/USDT"},
	{"ETHEREUM", "ETH/USDT"}, {"ETH", "ETH/USDT"},
	{"SOLANA", "SOL/USDT"}, {"SOL", "SOL/USDT"},
	{"BNB", "BNB/USDT"}, {"BINANCE", "BNB/USDT"},
	{"XRP", "XRP/USDT"}, {"RIPPLE", "XRP/USDT"},
	{"CARDANO", "ADA/USDT"}, {"ADA", "ADA/USDT"},
	{"DOGECOIN", "DOGE/USDT"}, {"DOGE", "DOGE/USDT"},
}

// AnalyzeSentiment тональность по ключевым словам. Побеждает большее число совпадений.
func AnalyzeSentiment(text string) string {
	lower := strings.ToLower(text)
	bull, bear := 0, 0
	for _, w := range bullishWords {
		if strings.Contains(lower, w) {
			bull++
		}
	}
	for _, w := range bearishWords {
		if strings.Contains(lower, w) {
			bear++
		}
	}
	switch {
	case bull > bear:
		return Bullish
	case bear > bull:
		return Bearish
	default:
		return Neutral
	}
}

// ExtractSymbols пары, упомянутые в тексте. Сравниваются целые слова.
func ExtractSymbols(text string) []string {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}

	symbols := []string{}
	seen := make(map[string]bool)
	for _, kw := range symbolKeywords {
		if words[kw.word] && !seen[kw.symbol] {
			seen[kw.symbol] = true
			symbols = append(symbols, kw.symbol)
		}
	}
	return symbols
}

// Scraper загружает новости из JSON-источников
type Scraper struct {
	sources []string
	client  *http.Client
	now     func() time.Time
}

// NewScraper создает сборщик. client может быть nil.
func NewScraper(sources []string, client *http.Client) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Scraper{sources: sources, client: client, now: time.Now}
}

// sourceResponse формат ответа источника (CoinGecko news)
type sourceResponse struct {
	Data []struct {
		ID        json.RawMessage `json:"id"`
		Title     string          `json:"title"`
		NewsSite  string          `json:"news_site"`
		URL       string          `json:"url"`
		UpdatedAt json.RawMessage `json:"updated_at"`
	} `json:"data"`
}

// Fetch опрашивает все источники. Если ни один не дал новостей, возвращает заготовленные.
// Второе значение сообщает, что использованы заготовленные новости.
func (s *Scraper) Fetch(ctx context.Context) ([]models.NewsItem, bool) {
	var items []models.NewsItem
	for _, source := range s.sources {
		fetched, err := s.fetchSource(ctx, source)
		if err != nil {
			logger.Warn("Ошибка загрузки новостей", zap.String("source", source), zap.Error(err))
			continue
		}
		items = append(items, fetched...)
	}

	if len(items) == 0 {
		logger.Info("Источники новостей недоступны, используются заготовленные новости")
		return MockNews(s.now()), true
	}
	return items, false
}

func (s *Scraper) fetchSource(ctx context.Context, source string) ([]models.NewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("статус %d", resp.StatusCode)
	}

	var body sourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа: %w", err)
	}

	now := s.now()
	items := make([]models.NewsItem, 0, maxPerSource)
	for i, raw := range body.Data {
		if i == maxPerSource {
			break
		}
		source := raw.NewsSite
		if source == "" {
			source = "Unknown"
		}
		id := rawString(raw.ID)
		if id == "" {
			id = titleID(raw.Title)
		}
		items = append(items, models.NewsItem{
			ID:        id,
			Title:     raw.Title,
			Source:    source,
			URL:       raw.URL,
			Timestamp: parseTimestamp(raw.UpdatedAt, now),
			Sentiment: AnalyzeSentiment(raw.Title),
			Symbols:   ExtractSymbols(raw.Title),
		})
	}
	return items, nil
}

// rawString значение поля, которое бывает и строкой, и числом
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// parseTimestamp unix-секунды или RFC3339, иначе now
func parseTimestamp(raw json.RawMessage, now time.Time) time.Time {
	v := rawString(raw)
	if v == "" {
		return now
	}
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return now
}

func titleID(title string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(title))
	return strconv.FormatUint(h.Sum64(), 16)
}

var mockSources = []string{"CoinDesk", "CoinTelegraph", "Bloomberg Crypto", "The Block"}

// MockNews заготовленные новости, когда источники недоступны
func MockNews(now time.Time) []models.NewsItem {
	headlines := []struct {
		title     string
		sentiment string
		symbols   []string
	}{
		{"Bitcoin breaks new resistance level as institutional interest grows", Bullish, []string{"BTC/USDT"}},
		{"Ethereum upgrade expected to boost network efficiency", Bullish, []string{"ETH/USDT"}},
		{"Crypto market sees increased volatility amid regulatory news", Neutral, []string{}},
		{"Solana DeFi ecosystem reaches new milestone", Bullish, []string{"SOL/USDT"}},
		{"Market analysts predict short-term correction", Bearish, []string{"BTC/USDT", "ETH/USDT"}},
		{"Major exchange adds new trading pairs", Neutral, []string{}},
		{"Bitcoin ETF sees record inflows", Bullish, []string{"BTC/USDT"}},
		{"Regulatory clarity could boost institutional adoption", Bullish, []string{}},
	}

	items := make([]models.NewsItem, len(headlines))
	for i, h := range headlines {
		items[i] = models.NewsItem{
			ID:        fmt.Sprintf("mock-news-%d", i),
			Title:     h.title,
			Source:    mockSources[i%len(mockSources)],
			URL:       fmt.Sprintf("https://example.com/news/%d", i),
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
			Sentiment: h.sentiment,
			Symbols:   h.symbols,
		}
	}
	return items
}
