package config

import "time"

type Config struct {
	BaseURL  string
	Env      string
	HttpPort int

	AllowedOrigin string

	Mongo struct {
		URI string
		DB  string
	}

	Redis struct {
		Addr string
		DB   int
	}

	Notifications struct {
		Email string
	}

	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}

	KafkaServers string

	Oracle struct {
		BaseURL        string
		FreshTTL       time.Duration
		StaleTTL       time.Duration
		BaseBackoff    time.Duration
		EmergencyUSDNGN  float64
		EmergencySTXUSD  float64
		EmergencyUSDCUSD float64
	}

	Stacks struct {
		PlatformAddress    string
		PlatformPrivateKey string
		Network            string
		APIURL             string
		USDCContractAddr   string
		USDCContractName   string
	}

	Indexer struct {
		PollInterval time.Duration
	}

	InternalAPIKey string
	SelfBaseURL    string

	Lenco struct {
		BaseURL       string
		APIKey        string
		AccountID     string
		WebhookSecret string
		MinBalanceNGN int64
	}

	Monnify struct {
		APIKey        string
		SecretKey     string
		ContractCode  string
		WebhookSecret string
	}

	Offramp struct {
		FlatFeeNGN      int64
		MinToken        float64
		MaxToken        float64
		MinBufferNGN    int64
		AmountToleranceBPS int64
		ConfirmationBlocks int
		ExpiryWindow    time.Duration
	}

	RateLimit struct {
		WindowMs int
		Max      int
	}
}
