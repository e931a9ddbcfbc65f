// Package main is the entry point for the arc-beacon API service.
//
// @title          A.R.C. Beacon API
// @version        0.1.0
// @description    Beacon HTTP API. Publishes its route table to the platform route registry after startup.
// @host           localhost:3000
// @BasePath       /
// @schemes        http
package main

func main() {
	Execute()
}
