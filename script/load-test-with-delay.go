package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AcquireRequest represents the lock acquisition payload
type AcquireRequest struct {
	ResourceID string          `json:"resourceId"`
	OwnerID    string          `json:"ownerId"`
	OwnerType  string          `json:"ownerType"`
	Payload    json.RawMessage `json:"payload"`
	TimeoutMs  int64           `json:"timeoutMs,omitempty"`
	Priority   int             `json:"priority,omitempty"`
}

// AcquireResponse represents the API response
type AcquireResponse struct {
	Success       bool   `json:"success"`
	LockID        string `json:"lockId,omitempty"`
	IsRetry       bool   `json:"isRetry,omitempty"`
	QueueID       string `json:"queueId,omitempty"`
	QueuePosition int    `json:"queuePosition,omitempty"`
}

// TestResult contains metrics for a single request
type TestResult struct {
	Success      bool
	Granted      bool
	Queued       bool
	Retried      bool
	ResponseTime time.Duration
	StatusCode   int
	Error        error
}

// TestStats contains aggregated test statistics
type TestStats struct {
	TotalRequests      int
	SuccessfulRequests int
	FailedRequests     int
	GrantedLocks       int
	QueuedRequests     int
	RetriedRequests    int
	TotalTime          time.Duration
	MinResponseTime    time.Duration
	MaxResponseTime    time.Duration
	TotalResponseTime  time.Duration
	ResponseTimes      []time.Duration
	ErrorCounts        map[string]int
	ResourceStats      map[string]int // Track requests per resource
	ScenarioStats      map[string]int // Track requests per scenario
	Lock               sync.Mutex
}

// OperationScenario defines one operation payload shape
type OperationScenario struct {
	Name    string // For stats tracking
	Payload string // Tagged payload envelope
}

func main() {

	// Define command line flags
	concurrency := flag.Int("c", 5, "Number of concurrent goroutines")
	totalRequests := flag.Int("n", 100, "Total number of requests to make")
	resourcesStr := flag.String("r", "order:BTCUSDT,order:ETHUSDT,order:SOLUSDT", "Comma-separated list of resource IDs to contend over")
	baseURL := flag.String("url", "http://localhost:8080", "Base URL for the API")
	delayMs := flag.Int("delay", 100, "Delay between requests in milliseconds")
	timeoutMs := flag.Int64("lock-timeout", 2000, "Lock timeout in milliseconds")
	flag.Parse()

	// Parse resource IDs
	var resources []string
	for _, r := range strings.Split(*resourcesStr, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			resources = append(resources, r)
		}
	}

	// Default to one resource: maximum contention
	if len(resources) == 0 {
		resources = []string{"order:BTCUSDT"}
	}

	// Define operation scenarios
	scenarios := []OperationScenario{
		{"Trade Buy Limit", `{"type":"trade","data":{"symbol":"BTCUSDT","side":"buy","orderType":"limit","quantity":"0.5","price":"64000"}}`},
		{"Trade Sell Market", `{"type":"trade","data":{"symbol":"BTCUSDT","side":"sell","orderType":"market","quantity":"0.25"}}`},
		{"Trade Buy Market", `{"type":"trade","data":{"symbol":"ETHUSDT","side":"buy","orderType":"market","quantity":"2"}}`},
		{"Cancel Order", `{"type":"cancel","data":{"symbol":"BTCUSDT","orderId":"ord-100"}}`},
		{"Update Price", `{"type":"update","data":{"symbol":"BTCUSDT","orderId":"ord-100","price":"65000"}}`},
	}

	fmt.Printf("Load testing lock manager across %d resources: %v\n", len(resources), resources)
	fmt.Printf("Operation scenarios: %d different payloads\n", len(scenarios))
	fmt.Printf("Concurrency: %d goroutines\n", *concurrency)
	fmt.Printf("Total requests: %d\n", *totalRequests)
	fmt.Printf("Delay between requests: %d ms\n", *delayMs)

	// Initialize test statistics
	stats := &TestStats{
		TotalRequests:   *totalRequests,
		MinResponseTime: time.Hour, // Start with a high value that will be replaced
		ErrorCounts:     make(map[string]int),
		ResponseTimes:   make([]time.Duration, 0, *totalRequests),
		ResourceStats:   make(map[string]int),
		ScenarioStats:   make(map[string]int),
	}

	// Initialize stats for each resource
	for _, r := range resources {
		stats.ResourceStats[r] = 0
	}

	// Initialize stats for each scenario
	for _, scenario := range scenarios {
		stats.ScenarioStats[scenario.Name] = 0
	}

	// Channel to collect results
	results := make(chan TestResult, *totalRequests)

	// Channel to distribute work
	jobs := make(chan int, *totalRequests)

	// Start worker goroutines
	var wg sync.WaitGroup
	fmt.Println("Starting worker goroutines...")
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			worker(workerID, *baseURL, *delayMs, *timeoutMs, resources, scenarios, jobs, results, stats)
		}(i)
	}

	// Fill the jobs channel
	go func() {
		for i := 0; i < *totalRequests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	// Start a goroutine to collect results
	go func() {
		for result := range results {
			stats.Lock.Lock()
			if result.Success {
				stats.SuccessfulRequests++
				if result.Granted {
					stats.GrantedLocks++
				}
				if result.Queued {
					stats.QueuedRequests++
				}
				if result.Retried {
					stats.RetriedRequests++
				}
			} else {
				stats.FailedRequests++
				errMsg := "unknown"
				if result.Error != nil {
					errMsg = result.Error.Error()
				}
				stats.ErrorCounts[errMsg]++
			}

			stats.ResponseTimes = append(stats.ResponseTimes, result.ResponseTime)
			stats.TotalResponseTime += result.ResponseTime

			if result.ResponseTime < stats.MinResponseTime {
				stats.MinResponseTime = result.ResponseTime
			}
			if result.ResponseTime > stats.MaxResponseTime {
				stats.MaxResponseTime = result.ResponseTime
			}
			stats.Lock.Unlock()
		}
	}()

	// Start the timer
	startTime := time.Now()
	fmt.Println("Test running...")

	// Print progress periodically
	ticker := time.NewTicker(1 * time.Second)
	go func() {
		for range ticker.C {
			stats.Lock.Lock()
			completed := stats.SuccessfulRequests + stats.FailedRequests
			if completed > 0 {
				fmt.Printf("Progress: %d/%d requests completed (%.1f%%)\n",
					completed, stats.TotalRequests, float64(completed)/float64(stats.TotalRequests)*100)
			}
			stats.Lock.Unlock()
		}
	}()

	// Wait for all workers to finish
	wg.Wait()
	close(results)
	ticker.Stop()

	// Calculate the total test time
	stats.TotalTime = time.Since(startTime)

	// Print results
	printResults(stats)
}

func worker(id int, baseURL string, delayMs int, timeoutMs int64, resources []string,
	scenarios []OperationScenario, jobs <-chan int, results chan<- TestResult, stats *TestStats) {

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	for jobID := range jobs {
		// Optional delay between requests to prevent rate limiting
		if delayMs > 0 {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
		}

		// Randomly select a resource to contend over
		resource := resources[rand.Intn(len(resources))]

		// Randomly select an operation scenario
		scenario := scenarios[rand.Intn(len(scenarios))]

		// Update stats for which resource and scenario was selected
		stats.Lock.Lock()
		stats.ResourceStats[resource]++
		stats.ScenarioStats[scenario.Name]++
		stats.Lock.Unlock()

		apiURL := fmt.Sprintf("%s/locks", baseURL)

		// Each worker/job pair is a distinct owner so requests contend rather
		// than dedupe
		acquire := AcquireRequest{
			ResourceID: resource,
			OwnerID:    fmt.Sprintf("load-owner-%d-%d", id, jobID),
			OwnerType:  "user",
			Payload:    json.RawMessage(scenario.Payload),
			TimeoutMs:  timeoutMs,
			Priority:   rand.Intn(10),
		}

		jsonData, err := json.Marshal(acquire)
		if err != nil {
			results <- TestResult{Success: false, Error: err}
			continue
		}

		// Create request
		req, err := http.NewRequest("POST", apiURL, bytes.NewBuffer(jsonData))
		if err != nil {
			results <- TestResult{Success: false, Error: err}
			continue
		}

		// Set headers
		req.Header.Set("Content-Type", "application/json")

		// Send the request and measure response time
		startTime := time.Now()
		resp, err := client.Do(req)
		responseTime := time.Since(startTime)

		result := TestResult{
			ResponseTime: responseTime,
		}

		if err != nil {
			result.Success = false
			result.Error = err
		} else {
			statusCode := resp.StatusCode
			result.StatusCode = statusCode
			result.Success = (statusCode >= 200 && statusCode < 300)
			if result.Success {
				var body AcquireResponse
				if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil {
					result.Granted = body.Success
					result.Queued = body.QueueID != ""
					result.Retried = body.IsRetry
				}
			} else {
				result.Error = fmt.Errorf("HTTP status code %d", statusCode)
			}
			resp.Body.Close()
		}

		results <- result
	}
}

func printResults(stats *TestStats) {
	// Calculate theoretical TPS (ignores actual delays between requests)
	rawTps := float64(stats.SuccessfulRequests) / stats.TotalTime.Seconds()

	// Calculate TPS if all requests were successful
	theoreticalTps := float64(stats.TotalRequests) / stats.TotalTime.Seconds()

	// Calculate average response time
	var avgResponseTime time.Duration
	if len(stats.ResponseTimes) > 0 {
		avgResponseTime = stats.TotalResponseTime / time.Duration(len(stats.ResponseTimes))
	}

	// Calculate percentiles
	var p50, p90, p95, p99 time.Duration
	if len(stats.ResponseTimes) > 0 {
		// Sort the response times
		sortedTimes := make([]time.Duration, len(stats.ResponseTimes))
		copy(sortedTimes, stats.ResponseTimes)

		// Simple bubble sort (OK for small datasets)
		for i := 0; i < len(sortedTimes); i++ {
			for j := i + 1; j < len(sortedTimes); j++ {
				if sortedTimes[i] > sortedTimes[j] {
					sortedTimes[i], sortedTimes[j] = sortedTimes[j], sortedTimes[i]
				}
			}
		}

		p50 = sortedTimes[len(sortedTimes)*50/100]
		p90 = sortedTimes[len(sortedTimes)*90/100]
		p95 = sortedTimes[len(sortedTimes)*95/100]
		p99 = sortedTimes[len(sortedTimes)*99/100]
	}

	// Print results
	fmt.Println("\n================= TEST RESULTS =================")
	fmt.Printf("Total Requests:      %d\n", stats.TotalRequests)
	fmt.Printf("Successful Requests: %d (%.1f%%)\n", stats.SuccessfulRequests,
		float64(stats.SuccessfulRequests)/float64(stats.TotalRequests)*100)
	fmt.Printf("Failed Requests:     %d (%.1f%%)\n", stats.FailedRequests,
		float64(stats.FailedRequests)/float64(stats.TotalRequests)*100)
	fmt.Printf("Total Test Time:     %.2f seconds\n", stats.TotalTime.Seconds())

	fmt.Println("\n----------------- LOCK OUTCOMES -----------------")
	fmt.Printf("Granted Locks:       %d\n", stats.GrantedLocks)
	fmt.Printf("Queued Requests:     %d\n", stats.QueuedRequests)
	fmt.Printf("Retried (dedupe):    %d\n", stats.RetriedRequests)

	fmt.Println("\n----------------- PERFORMANCE -----------------")
	fmt.Printf("Raw TPS:             %.2f (successful requests / total time)\n", rawTps)
	fmt.Printf("Theoretical TPS:     %.2f (if all requests were successful)\n", theoreticalTps)

	fmt.Println("\n----------------- RESPONSE TIMES -----------------")
	fmt.Printf("Average Response:    %v\n", avgResponseTime)
	fmt.Printf("Minimum Response:    %v\n", stats.MinResponseTime)
	fmt.Printf("Maximum Response:    %v\n", stats.MaxResponseTime)
	fmt.Printf("P50 Response:        %v\n", p50)
	fmt.Printf("P90 Response:        %v\n", p90)
	fmt.Printf("P95 Response:        %v\n", p95)
	fmt.Printf("P99 Response:        %v\n", p99)

	// Print resource distribution
	fmt.Println("\n----------------- RESOURCE DISTRIBUTION -----------------")
	totalResources := 0
	for _, count := range stats.ResourceStats {
		totalResources += count
	}
	for resource, count := range stats.ResourceStats {
		if count > 0 {
			fmt.Printf("%-20s: %d requests (%.1f%%)\n", resource, count,
				float64(count)/float64(totalResources)*100)
		}
	}

	// Print scenario distribution
	fmt.Println("\n----------------- SCENARIO DISTRIBUTION -----------------")
	totalScenarios := 0
	for _, count := range stats.ScenarioStats {
		totalScenarios += count
	}
	for scenario, count := range stats.ScenarioStats {
		if count > 0 {
			fmt.Printf("%-20s: %d requests (%.1f%%)\n", scenario, count,
				float64(count)/float64(totalScenarios)*100)
		}
	}

	// Print error distribution if there were errors
	if stats.FailedRequests > 0 {
		fmt.Println("\n----------------- ERROR DISTRIBUTION -----------------")
		for errMsg, count := range stats.ErrorCounts {
			fmt.Printf("%-40s: %d (%.1f%%)\n", errMsg, count,
				float64(count)/float64(stats.TotalRequests)*100)
		}
	}

	fmt.Println("================================================")
}
