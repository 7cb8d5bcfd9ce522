package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// SetupGraphQLRoutes injects the public endpoints including the graphql one.
func (api *APIHandler) SetupGraphQLRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	path := api.graphQLPath()
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))
	router.POST(path, m.public(api.ExecuteGraphQL))
	router.GET(path, m.public(api.QueryGraphQL))
	router.Handle(http.MethodOptions, path, m.public(api.ExecuteGraphQL))
	return router
}
