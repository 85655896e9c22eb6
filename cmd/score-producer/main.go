package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// ScoreSubmission represents a finished run reported to the hub
type ScoreSubmission struct {
	Game     string `json:"game"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

var playerPrefixes = []string{
	"Ace", "Blaze", "Bolt", "Crash", "Dash", "Edge", "Flash", "Ghost",
	"Haze", "Ion", "Jade", "Knight", "Luna", "Mystic", "Neon", "Nova",
	"Orion", "Pixel", "Pulse", "Rebel", "Retro", "Spark", "Turbo", "Viper",
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

// scoreRanges gives each cabinet a plausible score band so the boards
// and achievement thresholds get exercised
var scoreRanges = map[string][2]int64{
	"Snake":  {50, 1500},
	"Pacman": {200, 3200},
	"Flappy": {1, 320},
	"Dino":   {100, 2100},
}

func rollScore(game string) int64 {
	bounds, ok := scoreRanges[game]
	if !ok {
		bounds = [2]int64{100, 1000}
	}
	return bounds[0] + rand.Int63n(bounds[1]-bounds[0]+1)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "arcade-scores", "Kafka topic")
	games := flag.String("games", "Snake,Pacman,Flappy,Dino", "Cabinet names (comma-separated)")
	totalPlayers := flag.Int("players", 200, "Total number of players to simulate")
	runsPerSecond := flag.Int("rate", 50, "Finished runs per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	seedOnly := flag.Bool("seed-only", false, "Only seed one run per player, no continuous play")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")
	gameList := strings.Split(*games, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🎮 Arcade Score Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Cabinets:         %s\n", *games)
	fmt.Printf("  Players:          %d\n", *totalPlayers)
	fmt.Printf("  Runs/sec:         %d\n", *runsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper
	sendRun := func(submission ScoreSubmission) {
		data, err := json.Marshal(submission)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(submission.Username),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Seed every player with one run on a random cabinet
	fmt.Printf("Seeding %d players...\n", *totalPlayers)
	for i := 0; i < *totalPlayers; i++ {
		game := gameList[rand.Intn(len(gameList))]
		sendRun(ScoreSubmission{
			Game:     game,
			Username: getPlayerName(i),
			Score:    rollScore(game),
		})

		if (i+1)%50 == 0 || i+1 == *totalPlayers {
			progress := float64(i+1) / float64(*totalPlayers) * 100
			fmt.Printf("\r  Progress: %d/%d players (%.1f%%)", i+1, *totalPlayers, progress)
		}
	}
	fmt.Printf("\n✓ Seeded %d players\n\n", *totalPlayers)

	if *seedOnly {
		shutdown("Seed-only mode: exiting after one run per player")
		return
	}

	// Start continuous play
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Simulating arcade sessions (%d runs/sec)\n", *runsPerSecond)
	fmt.Println("Regulars play most of the runs, drop-ins fill the rest")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*runsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	regulars := 20
	if regulars > *totalPlayers {
		regulars = *totalPlayers
	}

	var runCount int64

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			// 70% of runs come from the regulars
			var playerIdx int
			if *totalPlayers == regulars || rand.Intn(100) < 70 {
				playerIdx = rand.Intn(regulars)
			} else {
				playerIdx = rand.Intn(*totalPlayers-regulars) + regulars
			}

			game := gameList[rand.Intn(len(gameList))]
			sendRun(ScoreSubmission{
				Game:     game,
				Username: getPlayerName(playerIdx),
				Score:    rollScore(game),
			})
			atomic.AddInt64(&runCount, 1)

		case <-statsTicker.C:
			runs := atomic.LoadInt64(&runCount)
			success := atomic.LoadInt64(&successCount)
			errors := atomic.LoadInt64(&errorCount)
			fmt.Printf("[%s] Runs: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				runs,
				success,
				errors,
			)
		}
	}
}
