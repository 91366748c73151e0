package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"skysched/database"
	"skysched/server"

	"github.com/joho/godotenv"
)

func main() {

	// .env is optional; env vars alone are fine in deployment
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using environment as-is")
	}

	port, _ := strconv.Atoi(getenv("DB_PORT", "5432"))

	conn, err := database.Open(database.Config{
		Host:     getenv("DB_HOST", "localhost"),
		Port:     port,
		User:     getenv("DB_USER", "postgres"),
		Password: getenv("DB_PASSWORD", ""),
		Name:     getenv("DB_NAME", "postgres"),
		SSLMode:  getenv("DB_SSLMODE", "disable"),
	})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer conn.Close()

	superusers := strings.Split(getenv("SUPERUSERS", ""), ",")
	ids := server.NewHeaderResolver(superusers)

	s, err := server.New(context.Background(), conn, ids, true)
	if err != nil {
		log.Fatalf("server init: %v", err)
	}

	addr := ":" + getenv("PORT", "8080")
	log.Printf("listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, s.Mux))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
