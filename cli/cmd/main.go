package main

import (
	"log"

	"github.com/joho/godotenv"

	"policyqa/cli/internal"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
}

func main() {
	internal.Execute()
}
