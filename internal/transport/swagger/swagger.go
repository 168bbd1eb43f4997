package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

const DefaultSpecURL = "/openapi.yml"

// Handler serves Swagger UI for the OpenAPI document published at specURL.
func Handler(specURL string) http.Handler {
	if specURL == "" {
		specURL = DefaultSpecURL
	}
	return httpSwagger.Handler(
		httpSwagger.URL(specURL),
		httpSwagger.DocExpansion("list"),
	)
}
