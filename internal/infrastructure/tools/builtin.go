package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
	"github.com/kowalskidev/assistant-core/internal/core/usecase"
)

// Config points the HTTP-backed tools at their upstreams. Empty base URLs
// fall back to the public endpoints; tests point them at a local server.
type Config struct {
	WeatherBaseURL string
	SearchBaseURL  string
	HTTPTimeout    time.Duration
}

// RegisterBuiltins installs the default tool set into the registry:
// a model-backed conversational tool, clock access, weather, and search.
func RegisterBuiltins(registry *usecase.ToolRegistry, model ports.ModelClient, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	weatherBase := strings.TrimRight(cfg.WeatherBaseURL, "/")
	if weatherBase == "" {
		weatherBase = "https://wttr.in"
	}
	searchBase := strings.TrimRight(cfg.SearchBaseURL, "/")
	if searchBase == "" {
		searchBase = "https://api.duckduckgo.com"
	}

	registrations := []struct {
		def domain.ToolDefinition
		fn  ports.ToolFunc
	}{
		{
			def: domain.ToolDefinition{
				Name:         usecase.FallbackToolName,
				Description:  "answers a message directly, without external data",
				RequiredArgs: []string{"message"},
				ReturnType:   "string",
			},
			fn: generalConversation(model),
		},
		{
			def: domain.ToolDefinition{
				Name:        "current_datetime",
				Description: "returns the current date and time",
				ReturnType:  "string",
			},
			fn: func(context.Context, map[string]any) (any, error) {
				return time.Now().Format("Monday, 2 January 2006, 15:04 MST"), nil
			},
		},
		{
			def: domain.ToolDefinition{
				Name:         "get_weather",
				Description:  "fetches current weather for a location",
				RequiredArgs: []string{"location"},
				ReturnType:   "string",
			},
			fn: fetchWeather(httpClient, weatherBase),
		},
		{
			def: domain.ToolDefinition{
				Name:         "web_search",
				Description:  "searches the web and returns a short abstract",
				RequiredArgs: []string{"query"},
				ReturnType:   "string",
			},
			fn: searchWeb(httpClient, searchBase),
		},
	}

	for _, reg := range registrations {
		if err := registry.Register(reg.def, reg.fn); err != nil {
			return err
		}
	}
	logger.Info("builtin_tools_registered", "count", len(registrations), "weather_upstream", weatherBase, "search_upstream", searchBase)
	return nil
}

func generalConversation(model ports.ModelClient) ports.ToolFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		message, _ := args["message"].(string)
		if strings.TrimSpace(message) == "" {
			return nil, fmt.Errorf("message is empty")
		}
		if model == nil {
			return nil, fmt.Errorf("no model configured")
		}
		content, err := model.Chat(ctx, "", []ports.ChatMessage{
			{Role: "system", Content: "You are a helpful personal assistant. Answer naturally and concisely."},
			{Role: "user", Content: message},
		}, ports.ChatOptions{Temperature: 0.7})
		if err != nil {
			return nil, err
		}
		return content, nil
	}
}

func fetchWeather(httpClient *http.Client, baseURL string) ports.ToolFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		location, _ := args["location"].(string)
		if strings.TrimSpace(location) == "" {
			return nil, fmt.Errorf("location is empty")
		}

		endpoint := baseURL + "/" + url.PathEscape(location) + "?format=j1"
		var payload struct {
			CurrentCondition []struct {
				TempC       string `json:"temp_C"`
				FeelsLikeC  string `json:"FeelsLikeC"`
				Humidity    string `json:"humidity"`
				WeatherDesc []struct {
					Value string `json:"value"`
				} `json:"weatherDesc"`
			} `json:"current_condition"`
		}
		if err := getJSON(ctx, httpClient, endpoint, &payload); err != nil {
			return nil, fmt.Errorf("weather lookup for %q: %w", location, err)
		}
		if len(payload.CurrentCondition) == 0 {
			return nil, fmt.Errorf("no weather data for %q", location)
		}

		current := payload.CurrentCondition[0]
		desc := ""
		if len(current.WeatherDesc) > 0 {
			desc = current.WeatherDesc[0].Value
		}
		return fmt.Sprintf("%s, %s°C (feels like %s°C), humidity %s%%",
			strings.ToLower(desc), current.TempC, current.FeelsLikeC, current.Humidity), nil
	}
}

func searchWeb(httpClient *http.Client, baseURL string) ports.ToolFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return nil, fmt.Errorf("query is empty")
		}

		endpoint := baseURL + "/?" + url.Values{
			"q":             {query},
			"format":        {"json"},
			"no_redirect":   {"1"},
			"skip_disambig": {"1"},
		}.Encode()
		var payload struct {
			AbstractText  string `json:"AbstractText"`
			AbstractURL   string `json:"AbstractURL"`
			Heading       string `json:"Heading"`
			RelatedTopics []struct {
				Text string `json:"Text"`
			} `json:"RelatedTopics"`
		}
		if err := getJSON(ctx, httpClient, endpoint, &payload); err != nil {
			return nil, fmt.Errorf("search for %q: %w", query, err)
		}

		if payload.AbstractText != "" {
			return payload.AbstractText + " (" + payload.AbstractURL + ")", nil
		}
		var snippets []string
		for _, topic := range payload.RelatedTopics {
			if topic.Text != "" {
				snippets = append(snippets, topic.Text)
			}
			if len(snippets) == 3 {
				break
			}
		}
		if len(snippets) == 0 {
			return nil, fmt.Errorf("no results for %q", query)
		}
		return strings.Join(snippets, "; "), nil
	}
}

func getJSON(ctx context.Context, httpClient *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
