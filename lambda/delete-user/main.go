package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/mindmend/backend/internal/app"
	"github.com/mindmend/backend/internal/handlers"
)

var h *handlers.Handler

func init() {
	h = app.MustBuild("delete-user").Handler
}

func main() {
	lambda.Start(h.Instrument(h.DeleteUser))
}
