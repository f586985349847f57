package gtts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/yungbote/fastingles-audio/internal/platform/envutil"
	"github.com/yungbote/fastingles-audio/internal/platform/httpx"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

const (
	ProviderName = "gtts"

	// MaxChunkRunes is the longest text the translate endpoint accepts per
	// request.
	MaxChunkRunes = 200

	defaultBaseURL = "https://translate.google.com"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

type Config struct {
	BaseURL           string
	Slow              bool
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerMinute int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:           envutil.String("GTTS_BASE_URL", defaultBaseURL),
		Slow:              envutil.Bool("GTTS_SLOW", false),
		Timeout:           envutil.Duration("GTTS_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries:        envutil.Int("GTTS_MAX_RETRIES", 2),
		RequestsPerMinute: envutil.Int("GTTS_REQUESTS_PER_MINUTE", 120),
	}
}

// Client speaks text through the Google Translate TTS endpoint and returns
// the concatenated MP3 segments.
type Client struct {
	log        *logger.Logger
	baseURL    string
	slow       bool
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if err := validateBaseURL(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid GTTS_BASE_URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &Client{
		log:        log.With("service", "GTTSClient"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		slow:       cfg.Slow,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		backoff:    500 * time.Millisecond,
	}, nil
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Synthesize(ctx context.Context, text, languageCode string) ([]byte, error) {
	chunks := SplitText(text, MaxChunkRunes)
	if len(chunks) == 0 {
		return nil, errors.New("gtts: empty input")
	}
	lang := NormalizeLanguage(languageCode)

	var out bytes.Buffer
	for i, chunk := range chunks {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("gtts rate limit wait: %w", err)
		}
		seg, err := c.fetchWithRetry(ctx, chunk, lang, i, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("gtts chunk %d/%d: %w", i+1, len(chunks), err)
		}
		out.Write(seg)
	}
	return out.Bytes(), nil
}

func (c *Client) fetchWithRetry(ctx context.Context, chunk, lang string, idx, total int) ([]byte, error) {
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, raw, err := c.fetchOnce(ctx, chunk, lang, idx, total)
		if err == nil {
			return raw, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("gTTS request retrying",
			"language", lang,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("unreachable retry loop")
}

func (c *Client) fetchOnce(ctx context.Context, chunk, lang string, idx, total int) (*http.Response, []byte, error) {
	speed := "1"
	if c.slow {
		speed = "0.3"
	}
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", chunk)
	q.Set("tl", lang)
	q.Set("client", "tw-ob")
	q.Set("ttsspeed", speed)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.baseURL+"/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil, &httpx.StatusError{Service: "gtts", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if len(raw) == 0 {
		return resp, nil, errors.New("empty audio segment")
	}
	return resp, raw, nil
}

// NormalizeLanguage maps a BCP-47 tag to the base language the endpoint
// expects ("en-US" -> "en"). Chinese keeps its script region.
func NormalizeLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "en"
	}
	lower := strings.ToLower(strings.ReplaceAll(code, "_", "-"))
	switch lower {
	case "zh-cn", "zh-tw":
		return "zh-" + strings.ToUpper(lower[3:])
	}
	if i := strings.IndexByte(lower, '-'); i > 0 {
		return lower[:i]
	}
	return lower
}

// SplitText cuts text into pieces of at most max runes, preferring sentence
// punctuation, then whitespace, then a hard cut.
func SplitText(text string, max int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	if max <= 0 {
		max = MaxChunkRunes
	}
	var out []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= max {
			out = appendChunk(out, string(runes))
			break
		}
		cut := lastBreak(runes[:max], ".!?;:,")
		if cut <= 0 {
			cut = lastBreak(runes[:max+1], " ")
		}
		if cut <= 0 {
			cut = max
		}
		out = appendChunk(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	return out
}

func lastBreak(runes []rune, set string) int {
	for i := len(runes) - 1; i > 0; i-- {
		if strings.ContainsRune(set, runes[i]) {
			if runes[i] == ' ' {
				return i
			}
			return i + 1
		}
	}
	return -1
}

func appendChunk(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("not an absolute url")
	}
	return nil
}
