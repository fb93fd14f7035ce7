package main

import (
	"flaneur/cmd/handlers"
	"flaneur/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
