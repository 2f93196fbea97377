package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

type OpenWeatherClient struct {
	apiKey    string
	city      string
	country   string
	latitude  float64
	longitude float64
	units     string
	lang      string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
}

func NewOpenWeatherClient(apiKey, city, country string, latitude, longitude float64, units, lang string) *OpenWeatherClient {
	if units == "" {
		units = "metric"
	}
	if lang == "" {
		lang = "en"
	}
	return &OpenWeatherClient{
		apiKey:    apiKey,
		city:      city,
		country:   country,
		latitude:  latitude,
		longitude: longitude,
		units:     units,
		lang:      lang,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "openweather",
			Timeout: 2 * time.Minute,
		}),
	}
}

type openWeatherResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Dt       int64 `json:"dt"`
	Timezone int   `json:"timezone"`
	Sys      struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

func (c *OpenWeatherClient) Get(ctx context.Context) (*Data, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openweather api key is empty")
	}

	query := url.Values{}
	query.Set("appid", c.apiKey)
	query.Set("units", c.units)
	query.Set("lang", c.lang)

	if c.latitude != 0 || c.longitude != 0 {
		query.Set("lat", fmt.Sprintf("%.6f", c.latitude))
		query.Set("lon", fmt.Sprintf("%.6f", c.longitude))
	} else if c.city != "" {
		if c.country != "" {
			query.Set("q", fmt.Sprintf("%s,%s", c.city, c.country))
		} else {
			query.Set("q", c.city)
		}
	} else {
		return nil, fmt.Errorf("openweather location is empty")
	}

	endpoint := url.URL{
		Scheme:   "https",
		Host:     "api.openweathermap.org",
		Path:     "/data/2.5/weather",
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("openweather request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, fmt.Errorf("openweather request failed: %w", doErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("openweather bad status: %s", resp.Status)
		}

		var payload openWeatherResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&payload); decErr != nil {
			return nil, fmt.Errorf("openweather decode: %w", decErr)
		}
		return &payload, nil
	})
	if err != nil {
		return nil, err
	}
	payload := result.(*openWeatherResponse)

	condition := ""
	description := ""
	conditionID := 0
	if len(payload.Weather) > 0 {
		condition = payload.Weather[0].Main
		description = payload.Weather[0].Description
		conditionID = payload.Weather[0].ID
	}

	loc := time.FixedZone("local", payload.Timezone)
	observed := time.Unix(payload.Dt, 0).In(loc)
	sunrise := time.Unix(payload.Sys.Sunrise, 0).In(loc)
	sunset := time.Unix(payload.Sys.Sunset, 0).In(loc)

	return &Data{
		Provider:       "openweather",
		Condition:      condition,
		Description:    description,
		ConditionID:    conditionID,
		Clouds:         payload.Clouds.All,
		Sunrise:        sunrise,
		Sunset:         sunset,
		TimezoneOffset: payload.Timezone,
		ObservedAt:     observed,
	}, nil
}
