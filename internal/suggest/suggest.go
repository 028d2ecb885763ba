// Package suggest asks a hosted language model for ride preferences based on a
// user's trip history.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"luxe-booking/internal/config"
	"luxe-booking/internal/models"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

const defaultTemperature = "21°C"

var ErrBadSuggestion = errors.New("suggester returned an unusable answer")

type Suggester interface {
	Suggest(ctx context.Context, ownerID uuid.UUID, pastBookings string) (models.Preferences, error)
}

type pastBooking struct {
	VehicleType string `json:"vehicleType"`
	Temperature string `json:"temperature"`
	MusicGenre  string `json:"musicGenre"`
}

// Summarize turns trips into the JSON array the prompt expects. Bookings do not
// record cabin temperature, so every entry carries the default; the music genre
// is inferred from the special requests.
func Summarize(bookings []models.ConfirmedBooking) (string, error) {
	out := make([]pastBooking, 0, len(bookings))
	for _, b := range bookings {
		genre := "Pop"
		if strings.Contains(strings.ToLower(b.AllergiesOrRequests), "music") {
			genre = "As Requested"
		}
		out = append(out, pastBooking{
			VehicleType: b.PreferredVehicle,
			Temperature: defaultTemperature,
			MusicGenre:  genre,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func buildPrompt(ownerID uuid.UUID, pastBookings string) string {
	var b strings.Builder
	b.WriteString("You personalize luxury ride settings from a customer's past bookings.\n")
	b.WriteString("Work out the customer's most frequent vehicle type, cabin temperature and music genre.\n")
	b.WriteString("The vehicle type must be one of: ")
	for i, v := range models.VehicleTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(v.ID))
	}
	b.WriteString(".\n")
	b.WriteString(`Answer with a JSON object with the keys "preferredVehicleType", "preferredTemperature" and "preferredMusicGenre".` + "\n\n")
	fmt.Fprintf(&b, "User ID: %s\nPast Bookings: %s\n", ownerID, pastBookings)
	return b.String()
}

// safetySettings mirror the thresholds the booking site has always used for this prompt.
var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
}

// Client asks a Gemini model for preferences.
type Client struct {
	genai *genai.Client
	model string
}

func NewClient(ctx context.Context, cfg config.AI) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{genai: gc, model: cfg.Model}, nil
}

func (c *Client) Suggest(ctx context.Context, ownerID uuid.UUID, pastBookings string) (models.Preferences, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(buildPrompt(ownerID, pastBookings)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		SafetySettings:   safetySettings,
	})
	if err != nil {
		return models.Preferences{}, fmt.Errorf("call suggester: %w", err)
	}
	return parsePreferences(resp.Text())
}

// Unavailable stands in when no model can be configured. Every call fails.
type Unavailable struct {
	Err error
}

func (u Unavailable) Suggest(context.Context, uuid.UUID, string) (models.Preferences, error) {
	return models.Preferences{}, fmt.Errorf("suggestions disabled: %w", u.Err)
}

// parsePreferences reads the model's JSON answer, tolerating a markdown code fence.
func parsePreferences(text string) (models.Preferences, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var p models.Preferences
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &p); err != nil {
		return models.Preferences{}, fmt.Errorf("%w: %v", ErrBadSuggestion, err)
	}
	p.PreferredVehicleType = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(p.PreferredVehicleType)), " ", "_")
	if !models.VehicleType(p.PreferredVehicleType).Valid() {
		return models.Preferences{}, fmt.Errorf("%w: vehicle type %q", ErrBadSuggestion, p.PreferredVehicleType)
	}
	if p.PreferredTemperature == "" {
		p.PreferredTemperature = defaultTemperature
	}
	return p, nil
}
