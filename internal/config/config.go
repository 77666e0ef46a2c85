// Package config loads every tunable of a run from the environment,
// optionally seeded from a .env file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkuran/shopbot/internal/models"
)

// maxProducts bounds how many synonym groups a run will attempt.
const maxProducts = 5

type Config struct {
	ShopURL string

	DryRun          bool
	CheckoutEnabled bool
	FullSend        bool
	Headless        bool

	NavTimeout     time.Duration
	ActionTimeout  time.Duration
	MaxRetries     int
	MatchThreshold float64

	MinStepDelay time.Duration
	MaxStepDelay time.Duration

	Accounts []models.Account
	Products []models.ProductRequest

	DiscountCode string
	Contact      ContactProfile
	Shipping     ShippingProfile
	Payment      PaymentProfile

	OutputDir         string
	BrowserWSEndpoint string

	Logging LoggingConfig

	// Optional integrations; empty means disabled.
	DatabaseURL string
	RedisAddr   string
	StatusAddr  string
}

// ContactProfile holds checkout contact fields. An empty field means
// "do not fill", never "clear".
type ContactProfile struct {
	Email string
	Phone string
}

type ShippingProfile struct {
	FirstName string
	LastName  string
	Address1  string
	Address2  string
	City      string
	State     string
	Zip       string
	Country   string
}

type PaymentProfile struct {
	CardNumber string
	CardName   string
	Expiry     string // MM/YY
	CVV        string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. A .env file in
// the working directory is merged in first when present; real
// environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ShopURL:         strings.TrimRight(os.Getenv("SHOP_URL"), "/"),
		DryRun:          getBoolOrDefault("DRY_RUN", false),
		CheckoutEnabled: getBoolOrDefault("CHECKOUT_ENABLED", false),
		FullSend:        getBoolOrDefault("FULL_SEND", false),
		Headless:        getBoolOrDefault("HEADLESS", true),
		NavTimeout:      getDurationOrDefault("NAV_TIMEOUT", 30*time.Second),
		ActionTimeout:   getDurationOrDefault("ACTION_TIMEOUT", 10*time.Second),
		MaxRetries:      getIntOrDefault("MAX_RETRIES", 3),
		MatchThreshold:  getFloatOrDefault("MATCH_THRESHOLD", 0.5),
		MinStepDelay:    getDurationOrDefault("MIN_STEP_DELAY", 500*time.Millisecond),
		MaxStepDelay:    getDurationOrDefault("MAX_STEP_DELAY", 1500*time.Millisecond),
		DiscountCode:    os.Getenv("DISCOUNT_CODE"),
		Contact: ContactProfile{
			Email: os.Getenv("CONTACT_EMAIL"),
			Phone: os.Getenv("CONTACT_PHONE"),
		},
		Shipping: ShippingProfile{
			FirstName: os.Getenv("SHIP_FIRST_NAME"),
			LastName:  os.Getenv("SHIP_LAST_NAME"),
			Address1:  os.Getenv("SHIP_ADDRESS1"),
			Address2:  os.Getenv("SHIP_ADDRESS2"),
			City:      os.Getenv("SHIP_CITY"),
			State:     os.Getenv("SHIP_STATE"),
			Zip:       os.Getenv("SHIP_ZIP"),
			Country:   os.Getenv("SHIP_COUNTRY"),
		},
		Payment: PaymentProfile{
			CardNumber: os.Getenv("CARD_NUMBER"),
			CardName:   os.Getenv("CARD_NAME"),
			Expiry:     os.Getenv("CARD_EXPIRY"),
			CVV:        os.Getenv("CARD_CVV"),
		},
		OutputDir:         getEnvOrDefault("OUTPUT_DIR", "runs"),
		BrowserWSEndpoint: os.Getenv("BROWSER_WS_ENDPOINT"),
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		StatusAddr:  os.Getenv("STATUS_ADDR"),
	}

	accounts, err := loadAccounts()
	if err != nil {
		return nil, err
	}
	cfg.Accounts = accounts

	cfg.Products = loadProducts()

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ShopURL == "" {
		return fmt.Errorf("SHOP_URL is required")
	}
	if len(c.Products) == 0 {
		return fmt.Errorf("no products configured; set PRODUCT_1_NAMES")
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be in (0,1], got %v", c.MatchThreshold)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	return nil
}

// Warnings reports configuration combinations worth flagging without
// blocking the run. FULL_SEND stays the only gate on order placement;
// the CHECKOUT_ENABLED mismatch is surfaced, not enforced.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.FullSend && !c.CheckoutEnabled {
		warnings = append(warnings, "FULL_SEND is set but CHECKOUT_ENABLED is not; no order can be placed without a checkout")
	}
	if c.FullSend && c.DryRun {
		warnings = append(warnings, "FULL_SEND is ignored in dry-run mode")
	}
	return warnings
}

// loadAccounts reads credentials from ACCOUNTS_JSON (a JSON array of
// {username,password}) or, failing that, from numbered
// ACCOUNT_n_USERNAME / ACCOUNT_n_PASSWORD pairs. MAX_ACCOUNTS
// truncates the list.
func loadAccounts() ([]models.Account, error) {
	var accounts []models.Account

	if raw := os.Getenv("ACCOUNTS_JSON"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
			return nil, fmt.Errorf("ACCOUNTS_JSON: %w", err)
		}
	} else {
		for i := 1; ; i++ {
			username := os.Getenv(fmt.Sprintf("ACCOUNT_%d_USERNAME", i))
			if username == "" {
				break
			}
			password := os.Getenv(fmt.Sprintf("ACCOUNT_%d_PASSWORD", i))
			if password == "" {
				return nil, fmt.Errorf("ACCOUNT_%d_PASSWORD is missing", i)
			}
			accounts = append(accounts, models.Account{Username: username, Password: password})
		}
	}

	for i, acct := range accounts {
		if acct.Username == "" || acct.Password == "" {
			return nil, fmt.Errorf("account %d has an empty username or password", i+1)
		}
	}

	if limit := getIntOrDefault("MAX_ACCOUNTS", 0); limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

// loadProducts reads PRODUCT_n_NAMES (comma-separated synonyms, most
// preferred first) and PRODUCT_n_QTY for n in 1..5.
func loadProducts() []models.ProductRequest {
	var products []models.ProductRequest
	for i := 1; i <= maxProducts; i++ {
		raw := os.Getenv(fmt.Sprintf("PRODUCT_%d_NAMES", i))
		if raw == "" {
			continue
		}
		var names []string
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			continue
		}
		qty := getIntOrDefault(fmt.Sprintf("PRODUCT_%d_QTY", i), 1)
		if qty < 1 {
			qty = 1
		}
		products = append(products, models.ProductRequest{Names: names, Quantity: qty})
	}
	return products
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
