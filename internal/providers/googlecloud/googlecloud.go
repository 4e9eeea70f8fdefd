// Package googlecloud implements the providers.Provider interface for
// Google Cloud's Text-to-Speech and Speech-to-Text REST APIs. Unlike the
// API-key providers, authentication is a bearer token minted from a
// service-account JSON credential (spec §4.D).
package googlecloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
	"github.com/nulpointcorp/conduit-gateway/internal/httputil"
	"github.com/nulpointcorp/conduit-gateway/internal/providers"
)

const (
	ttsBaseURL   = "https://texttospeech.googleapis.com/v1"
	sttBaseURL   = "https://speech.googleapis.com/v1"
	providerName = "googlecloud"

	oauthScope = "https://www.googleapis.com/auth/cloud-platform"
)

// Provider implements providers.Provider for Google Cloud's speech APIs.
type Provider struct {
	tokenSource oauth2.TokenSource
	client      *http.Client
}

// New creates a new Google Cloud Provider from a service-account JSON
// credential, minting OAuth2 bearer tokens via JWT assertion (the standard
// server-to-server flow for Google APIs).
func New(ctx context.Context, credentialsJSON []byte) (*Provider, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, oauthScope)
	if err != nil {
		return nil, fmt.Errorf("googlecloud: parse service account: %w", err)
	}

	return &Provider{
		tokenSource: cfg.TokenSource(ctx),
		client:      &http.Client{Timeout: providers.ProviderTimeout},
	}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.tokenSource.Token(); err != nil {
		return fmt.Errorf("googlecloud: health check: %w", err)
	}
	return nil
}

// Request implements providers.Provider; Google Cloud's speech APIs have no
// chat-completions surface.
func (p *Provider) Request(_ context.Context, _ *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	return nil, conduit.NewError(conduit.KindUnsupportedOperation, providerName, "googlecloud does not support chat completions", nil)
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// CreateSpeech synthesizes audio via Cloud Text-to-Speech, returning raw
// audio bytes decoded from the API's base64 response envelope.
func (p *Provider) CreateSpeech(ctx context.Context, text, languageCode, voiceName string) ([]byte, error) {
	reqBody := synthesizeRequest{}
	reqBody.Input.Text = text
	reqBody.Voice.LanguageCode = languageCode
	reqBody.Voice.Name = voiceName
	reqBody.AudioConfig.AudioEncoding = "MP3"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("googlecloud: marshal request: %w", err)
	}

	resp, err := p.doAuthenticated(ctx, http.MethodPost, httputil.Combine(ttsBaseURL, "text:synthesize"), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp)
	}

	var synth synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&synth); err != nil {
		return nil, fmt.Errorf("googlecloud: decode response: %w", err)
	}
	return base64.StdEncoding.DecodeString(synth.AudioContent)
}

type recognizeRequest struct {
	Config struct {
		Encoding        string `json:"encoding"`
		SampleRateHertz int    `json:"sampleRateHertz"`
		LanguageCode    string `json:"languageCode"`
	} `json:"config"`
	Audio struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Transcribe sends raw audio bytes to Cloud Speech-to-Text and returns the
// best transcript.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, sampleRateHertz int, languageCode string) (string, error) {
	reqBody := recognizeRequest{}
	reqBody.Config.Encoding = "LINEAR16"
	reqBody.Config.SampleRateHertz = sampleRateHertz
	reqBody.Config.LanguageCode = languageCode
	reqBody.Audio.Content = base64.StdEncoding.EncodeToString(audio)

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("googlecloud: marshal request: %w", err)
	}

	resp, err := p.doAuthenticated(ctx, http.MethodPost, httputil.Combine(sttBaseURL, "speech:recognize"), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", p.parseError(resp)
	}

	var rec recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return "", fmt.Errorf("googlecloud: decode response: %w", err)
	}
	if len(rec.Results) == 0 || len(rec.Results[0].Alternatives) == 0 {
		return "", nil
	}
	return rec.Results[0].Alternatives[0].Transcript, nil
}

// Speak implements providers.SpeechProvider over CreateSpeech, mapping the
// normalized request fields onto Cloud Text-to-Speech's language-code/voice
// parameters.
func (p *Provider) Speak(ctx context.Context, req *providers.SpeechRequest) (*providers.SpeechResponse, error) {
	audio, err := p.CreateSpeech(ctx, req.Text, req.Language, req.Voice)
	if err != nil {
		return nil, err
	}
	return &providers.SpeechResponse{Audio: audio, ContentType: "audio/mpeg"}, nil
}

// TranscribeAudio implements providers.TranscribeProvider over Transcribe.
func (p *Provider) TranscribeAudio(ctx context.Context, req *providers.TranscribeRequest) (*providers.TranscribeResponse, error) {
	text, err := p.Transcribe(ctx, req.Audio, req.SampleRateHertz, req.Language)
	if err != nil {
		return nil, err
	}
	return &providers.TranscribeResponse{Text: text}, nil
}

// VerifyAuthentication implements providers.AuthVerifier by minting a token
// and measuring the round trip; apiKey/baseURL are ignored since Google
// Cloud auth is keyed off the service-account credential bound at New.
func (p *Provider) VerifyAuthentication(_ context.Context, _, _ string) (*providers.AuthResult, error) {
	start := time.Now()
	_, err := p.tokenSource.Token()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &providers.AuthResult{OK: false, RoundTripMs: elapsed, Details: err.Error()}, nil
	}
	return &providers.AuthResult{OK: true, RoundTripMs: elapsed}, nil
}

func (p *Provider) doAuthenticated(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	tok, err := p.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("googlecloud: mint access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("googlecloud: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, conduit.NewError(conduit.KindCommunication, providerName, "request failed", err)
	}
	return resp, nil
}

// ProviderError is a structured error returned by the Google Cloud API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string   { return fmt.Sprintf("googlecloud: %s (status=%d)", e.Message, e.StatusCode) }
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Message: e.Error.Message}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
}
