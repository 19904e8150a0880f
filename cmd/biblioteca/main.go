// Package main is the entry point for the Biblioteca API gate.
//
//	@title						Biblioteca API
//	@version					1.0
//	@description				API key admission control and billing for the library catalog API.
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-Api-Key
//	@description				API key for the catalog routes
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Management token (format: "Bearer {jwt}")
package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	Execute()
}
