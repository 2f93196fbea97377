package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type OpenMeteoClient struct {
	city      string
	country   string
	latitude  float64
	longitude float64
	client    *http.Client
}

func NewOpenMeteoClient(city, country string, latitude, longitude float64) *OpenMeteoClient {
	return &OpenMeteoClient{
		city:      city,
		country:   country,
		latitude:  latitude,
		longitude: longitude,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type openMeteoResponse struct {
	Timezone  string `json:"timezone"`
	UTCOffset int    `json:"utc_offset_seconds"`
	Current   struct {
		Time        string  `json:"time"`
		WeatherCode int     `json:"weather_code"`
		CloudCover  float64 `json:"cloud_cover"`
	} `json:"current"`
	Daily struct {
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

type openMeteoGeoResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

func (c *OpenMeteoClient) Get(ctx context.Context) (*Data, error) {
	lat, lon, err := c.resolveLocation(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", lat))
	query.Set("longitude", fmt.Sprintf("%.6f", lon))
	query.Set("current", "weather_code,cloud_cover")
	query.Set("daily", "sunrise,sunset")
	query.Set("timezone", "auto")
	query.Set("forecast_days", "1")
	query.Set("past_days", "1")

	endpoint := url.URL{
		Scheme:   "https",
		Host:     "api.open-meteo.com",
		Path:     "/v1/forecast",
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("open-meteo bad status: %s", resp.Status)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("open-meteo decode: %w", err)
	}

	if strings.TrimSpace(payload.Current.Time) == "" {
		return nil, fmt.Errorf("open-meteo current data missing")
	}

	observed, _ := parseOpenMeteoTime(payload.Current.Time, payload.Timezone)
	sunrise, sunset := pickOpenMeteoSunTimes(observed, payload.Timezone, payload.Daily.Sunrise, payload.Daily.Sunset)

	condition, conditionID, description := openMeteoDescribe(payload.Current.WeatherCode)

	return &Data{
		Provider:       "openmeteo",
		Condition:      condition,
		Description:    description,
		ConditionID:    conditionID,
		Clouds:         int(math.Round(payload.Current.CloudCover)),
		Sunrise:        sunrise,
		Sunset:         sunset,
		TimezoneOffset: payload.UTCOffset,
		ObservedAt:     observed,
	}, nil
}

func (c *OpenMeteoClient) resolveLocation(ctx context.Context) (float64, float64, error) {
	if c.latitude != 0 || c.longitude != 0 {
		return c.latitude, c.longitude, nil
	}

	if strings.TrimSpace(c.city) == "" {
		return 0, 0, fmt.Errorf("open-meteo location is empty")
	}

	query := url.Values{}
	query.Set("name", c.city)
	query.Set("count", "1")
	query.Set("format", "json")
	if strings.TrimSpace(c.country) != "" {
		query.Set("country", c.country)
	}

	endpoint := url.URL{
		Scheme:   "https",
		Host:     "geocoding-api.open-meteo.com",
		Path:     "/v1/search",
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("open-meteo geocoding request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("open-meteo geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, 0, fmt.Errorf("open-meteo geocoding bad status: %s", resp.Status)
	}

	var payload openMeteoGeoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, fmt.Errorf("open-meteo geocoding decode: %w", err)
	}

	if len(payload.Results) == 0 {
		return 0, 0, fmt.Errorf("open-meteo geocoding found no results")
	}

	c.latitude = payload.Results[0].Latitude
	c.longitude = payload.Results[0].Longitude

	return c.latitude, c.longitude, nil
}

func parseOpenMeteoTime(value, timezone string) (time.Time, *time.Location) {
	loc := time.UTC
	if strings.TrimSpace(timezone) != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		}
	}

	if t, err := time.ParseInLocation("2006-01-02T15:04", value, loc); err == nil {
		return t, loc
	}
	if t, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
		return t, loc
	}
	return time.Time{}, loc
}

func pickOpenMeteoSunTimes(observed time.Time, timezone string, sunrises, sunsets []string) (time.Time, time.Time) {
	if len(sunrises) == 0 || len(sunsets) == 0 {
		return time.Time{}, time.Time{}
	}

	count := len(sunrises)
	if len(sunsets) < count {
		count = len(sunsets)
	}

	observedDate := time.Date(observed.Year(), observed.Month(), observed.Day(), 0, 0, 0, 0, observed.Location())
	closestDiff := time.Duration(1<<63 - 1)
	var closestSunrise time.Time
	var closestSunset time.Time

	for i := 0; i < count; i++ {
		sunrise, _ := parseOpenMeteoTime(sunrises[i], timezone)
		sunset, _ := parseOpenMeteoTime(sunsets[i], timezone)
		if sunrise.IsZero() || sunset.IsZero() {
			continue
		}
		if sameOpenMeteoDate(observed, sunrise) || sameOpenMeteoDate(observed, sunset) {
			return sunrise, sunset
		}

		sunriseDate := time.Date(sunrise.Year(), sunrise.Month(), sunrise.Day(), 0, 0, 0, 0, sunrise.Location())
		diff := observedDate.Sub(sunriseDate)
		if diff < 0 {
			diff = -diff
		}
		if diff < closestDiff {
			closestDiff = diff
			closestSunrise = sunrise
			closestSunset = sunset
		}
	}

	return closestSunrise, closestSunset
}

func sameOpenMeteoDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// openMeteoDescribe translates a WMO weather code into the OpenWeather-style
// condition group and the closest OpenWeather condition id, so downstream
// classification works the same regardless of provider.
func openMeteoDescribe(code int) (string, int, string) {
	switch code {
	case 0:
		return "Clear", 800, "clear sky"
	case 1:
		return "Clouds", 801, "mainly clear"
	case 2:
		return "Clouds", 802, "partly cloudy"
	case 3:
		return "Clouds", 804, "overcast"
	case 45, 48:
		return "Fog", 741, "fog"
	case 51, 53, 55, 56, 57:
		return "Drizzle", 301, "drizzle"
	case 61, 63:
		return "Rain", 501, "rain"
	case 65, 67:
		return "Rain", 502, "heavy rain"
	case 66:
		return "Rain", 511, "freezing rain"
	case 71, 73, 77:
		return "Snow", 601, "snow"
	case 75:
		return "Snow", 602, "heavy snow"
	case 80, 81:
		return "Rain", 521, "rain showers"
	case 82:
		return "Rain", 522, "violent rain showers"
	case 85:
		return "Snow", 620, "snow showers"
	case 86:
		return "Snow", 622, "heavy snow showers"
	case 95:
		return "Thunderstorm", 211, "thunderstorm"
	case 96, 99:
		return "Thunderstorm", 212, "thunderstorm with hail"
	default:
		return "", 0, "unknown condition"
	}
}
