package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stackture/infrastructure/config"
	"stackture/infrastructure/di"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The container lives as long as the execution environment, so its
	// cleanup is never run.
	container, _, err = di.InitializeContainer(context.Background(), cfg, true)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	chiRouter, ok := container.Router.Setup().(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)),
	)
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}

	// Never trust identity headers sent by the client; only the
	// authorizer's claims are forwarded.
	for key := range req.Headers {
		switch strings.ToLower(key) {
		case "x-api-gateway-authorized", "x-user-id", "x-user-roles":
			delete(req.Headers, key)
		}
	}
	if userID := gatewaySubject(req); userID != "" {
		req.Headers["X-API-Gateway-Authorized"] = "true"
		req.Headers["X-User-ID"] = userID
	}

	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["X-Cold-Start"] = fmt.Sprint(coldStart)
	coldStart = false
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	if resp.StatusCode >= 500 {
		container.Logger.Error("Lambda error response",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.String("requestID", req.RequestContext.RequestID),
			zap.Int("status", resp.StatusCode),
		)
	}

	return resp, err
}

// gatewaySubject returns the subject validated by the API Gateway JWT
// authorizer, if any
func gatewaySubject(req events.APIGatewayV2HTTPRequest) string {
	if req.RequestContext.Authorizer == nil || req.RequestContext.Authorizer.JWT == nil {
		return ""
	}
	return req.RequestContext.Authorizer.JWT.Claims["sub"]
}

func main() {
	lambda.Start(Handler)
}
