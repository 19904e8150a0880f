package http

import (
	_ "embed"
	"net/http"

	"github.com/swaggo/swag"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed swagger.tmpl
var docTemplate string

// SwaggerInfo describes the management API document.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Biblioteca API gate",
	Description:      "API key management, invoices and account status for the library catalog API.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// DocsHandler serves Swagger UI and doc.json under /swagger/.
func DocsHandler() http.Handler {
	return httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json"))
}
