package generator

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/openai/openai-go/option"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultResourceGroup    = "default"
	defaultAICoreAPIVersion = "2024-02-01"
)

// AICoreSettings holds the SAP AI Core OAuth client and request routing.
type AICoreSettings struct {
	AuthURL       string
	ClientID      string
	ClientSecret  string
	ResourceGroup string
	APIVersion    string
}

// NewAICoreLLMFromConfig builds a client for an OpenAI model deployed on SAP
// AI Core. cfg.BaseURL is the AI Core API URL (usually ending in /v2) and
// cfg.Model the deployment id. Tokens come from the client-credentials grant
// at auth.AuthURL and are refreshed by the transport.
func NewAICoreLLMFromConfig(cfg *LLMSettings, auth AICoreSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("aicore base url missing; provide llm.base_url or AICORE_BASE_URL")
	}
	if cfg.Model == "" {
		return nil, errors.New("aicore deployment id missing; provide llm.model or LLM_DEPLOYMENT_ID")
	}
	if auth.AuthURL == "" || auth.ClientID == "" || auth.ClientSecret == "" {
		return nil, errors.New("aicore credentials missing; provide AICORE_AUTH_URL, AICORE_CLIENT_ID and AICORE_CLIENT_SECRET")
	}

	group := auth.ResourceGroup
	if group == "" {
		group = defaultResourceGroup
	}
	version := auth.APIVersion
	if version == "" {
		version = defaultAICoreAPIVersion
	}

	cc := clientcredentials.Config{
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		TokenURL:     tokenURL(auth.AuthURL),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	opts := []option.RequestOption{
		option.WithBaseURL(deploymentURL(cfg.BaseURL, cfg.Model)),
		option.WithHTTPClient(cc.Client(context.Background())),
		option.WithHeader("AI-Resource-Group", group),
		option.WithQuery("api-version", version),
		option.WithMaxRetries(0),
	}
	return &OpenAILLM{Model: cfg.Model, Temperature: cfg.Temperature, Timeout: cfg.Timeout, Opts: opts}, nil
}

// tokenURL appends /oauth/token unless the auth URL already names it.
func tokenURL(authURL string) string {
	u := strings.TrimRight(authURL, "/")
	if strings.HasSuffix(u, "/oauth/token") {
		return u
	}
	return u + "/oauth/token"
}

func deploymentURL(baseURL, deploymentID string) string {
	return strings.TrimRight(baseURL, "/") + "/inference/deployments/" + url.PathEscape(deploymentID) + "/"
}
