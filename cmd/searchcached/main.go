package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"

	searchcache "github.com/nlstn/go-searchcache"
	"github.com/nlstn/go-searchcache/internal/observability"
)

// searchcached is a small demo daemon: it runs the search cache on a local
// SQLite file and exposes a minimal HTTP API for creating searches and
// paging through their results while a simulated executor streams rows in.

func main() {
	db, err := searchcache.Open("sqlite", "file:searchcached.db?_busy_timeout=10000")
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}

	svc, err := searchcache.New(db, searchcache.Config{
		ReuseWindow:  time.Minute,
		ExpiryWindow: time.Hour,
	})
	if err != nil {
		log.Fatal("Failed to create search cache:", err)
	}
	defer svc.Close()

	if err := svc.EnableObservability(observability.WithServerTiming()); err != nil {
		log.Fatal("Failed to enable observability:", err)
	}

	svc.StartSweeper(time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /searches", func(w http.ResponseWriter, r *http.Request) {
		handleCreate(svc, w, r)
	})
	mux.HandleFunc("GET /searches/{id}/page", func(w http.ResponseWriter, r *http.Request) {
		handlePage(svc, w, r)
	})

	fmt.Println("searchcached listening on :8080")
	fmt.Println("  Create search: POST http://localhost:8080/searches?resourceType=Patient&q=name=smith")
	fmt.Println("  Fetch page:    GET  http://localhost:8080/searches/{id}/page?offset=0&count=10&mode=async")
	fmt.Println()

	if err := http.ListenAndServe(":8080", servertiming.Middleware(mux, nil)); err != nil {
		log.Fatal("Server failed:", err)
	}
}

func handleCreate(svc *searchcache.Service, w http.ResponseWriter, r *http.Request) {
	resourceType := r.URL.Query().Get("resourceType")
	query := r.URL.Query().Get("q")
	if resourceType == "" {
		http.Error(w, "resourceType is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	handle, err := svc.FindOrCreateSearch(ctx, searchcache.FingerprintInputs{
		ResourceType: resourceType,
		QueryString:  query,
		PartitionKey: r.URL.Query().Get("partition"),
	}, time.Now().Add(-time.Minute))
	if err != nil {
		writeError(w, err)
		return
	}

	if !handle.Reused {
		won, err := svc.ClaimForExecution(ctx, handle.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if won {
			go execute(svc, handle.ID, resourceType)
		}
	}

	writeJSON(w, map[string]any{
		"id":     handle.ID,
		"status": handle.Status,
		"reused": handle.Reused,
	})
}

func handlePage(svc *searchcache.Service, w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	count := 10
	if v := r.URL.Query().Get("count"); v != "" {
		count, _ = strconv.Atoi(v)
	}
	mode := searchcache.FetchAsync
	if r.URL.Query().Get("mode") == "sync" {
		mode = searchcache.FetchSync
	}

	page, err := svc.FetchPage(r.Context(), r.PathValue("id"), offset, count, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"entries":      page.Entries,
		"stillLoading": page.StillLoading,
		"isLastPage":   page.IsLastPage,
		"totalCount":   page.TotalCount,
		"failure":      page.FailureMessage,
	})
}

// execute simulates a slow backend query streaming result batches into the
// cache. A real deployment would run its database search here instead.
func execute(svc *searchcache.Service, searchID, resourceType string) {
	ctx := context.Background()
	total := int64(0)
	for batch := 0; batch < 5; batch++ {
		ids := make([]string, 0, 10)
		for i := 0; i < 10; i++ {
			ids = append(ids, fmt.Sprintf("%s/%d", resourceType, batch*10+i))
		}
		if err := svc.AppendResults(ctx, searchID, ids); err != nil {
			_ = svc.FailSearch(ctx, searchID, err.Error())
			return
		}
		total += int64(len(ids))
		time.Sleep(500 * time.Millisecond)
	}
	if err := svc.CompleteSearch(ctx, searchID, &total); err != nil {
		log.Println("completing search:", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("encoding response:", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, searchcache.ErrSearchNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, searchcache.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
