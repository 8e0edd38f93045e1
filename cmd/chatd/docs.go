package main

// General API documentation for swaggo. The registered document lives in
// internal/apidocs.
//
// @title           chatd API
// @version         1.0
// @description     Chat completion service with bounded concurrency in front of a local llama.cpp model.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
