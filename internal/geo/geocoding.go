package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client resolves coordinates to a city name via the Nominatim
// reverse-geocoding API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient() *Client {
	return &Client{
		baseURL: "https://nominatim.openstreetmap.org",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type reverseResponse struct {
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
	} `json:"address"`
}

// CityByCoordinates returns the nearest settlement name for a point.
func (c *Client) CityByCoordinates(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))
	q.Set("accept-language", "ru")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "currency-rate-bot")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: status %d", resp.StatusCode)
	}

	var r reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}

	switch {
	case r.Address.City != "":
		return r.Address.City, nil
	case r.Address.Town != "":
		return r.Address.Town, nil
	case r.Address.Village != "":
		return r.Address.Village, nil
	}
	return "", fmt.Errorf("no settlement at %.4f,%.4f", lat, lon)
}
