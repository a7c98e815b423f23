package config

import (
	"fmt"
	"strings"
	"time"

	clowder "github.com/redhatinsights/app-common-go/pkg/api/v1"
	"github.com/spf13/viper"
)

const (
	ENV_PREFIX = "PSA_SYNC"

	URL_APP_NAME                   = "URL_App_Name"
	URL_PATH_PREFIX                = "URL_Path_Prefix"
	URL_BASE_PATH                  = "URL_Base_Path"
	HTTP_SHUTDOWN_TIMEOUT          = "HTTP_Shutdown_Timeout"
	SERVICE_TO_SERVICE_CREDENTIALS = "Service_To_Service_Credentials"
	PROFILE                        = "Enable_Profile"
	OPENAPI_SPEC_FILE_PATH         = "OpenAPI_Spec_File_Path"

	STORE_IMPL                  = "Store_Impl"
	DATABASE_HOST               = "Database_Host"
	DATABASE_PORT               = "Database_Port"
	DATABASE_USER               = "Database_User"
	DATABASE_PASSWORD           = "Database_Password"
	DATABASE_NAME               = "Database_Name"
	DATABASE_SSL_MODE           = "Database_SSL_Mode"
	DATABASE_SSL_ROOT_CERT      = "Database_SSL_Root_Cert"
	DATABASE_MAX_OPEN_CONNS     = "Database_Max_Open_Connections"
	DATABASE_QUERY_TIMEOUT      = "Database_Query_Timeout"
	DEFAULT_DATABASE_QUERY_SECS = 5

	BROKERS                      = "Kafka_Brokers"
	DEFAULT_BROKER_ADDRESS       = "kafka:29092"
	EVENTS_IMPL                  = "Events_Impl"
	SYNC_EVENTS_TOPIC            = "Kafka_Sync_Events_Topic"
	SYNC_EVENTS_BATCH_SIZE       = "Kafka_Sync_Events_Batch_Size"
	SYNC_EVENTS_BATCH_BYTES      = "Kafka_Sync_Events_Batch_Bytes"
	SYNC_REQUESTS_TOPIC          = "Kafka_Sync_Requests_Topic"
	SYNC_REQUESTS_GROUP_ID       = "Kafka_Sync_Requests_Group_Id"
	KAFKA_SASL_MECHANISM         = "Kafka_SASL_Mechanism"
	KAFKA_USERNAME               = "Kafka_Username"
	KAFKA_PASSWORD               = "Kafka_Password"
	KAFKA_CA                     = "Kafka_CA"
	SYNC_EVENTS_TOPIC_DEFAULT    = "platform.psa-sync.events"
	SYNC_REQUESTS_TOPIC_DEFAULT  = "platform.psa-sync.requests"
	SYNC_REQUESTS_GROUP_DEFAULT  = "psa-sync-consumer"
	VAULT_MASTER_KEY_IMPL        = "Vault_Master_Key_Impl"
	VAULT_MASTER_KEY             = "Vault_Master_Key"
	VAULT_AWS_REGION             = "Vault_AWS_Region"
	VAULT_AWS_SECRET_ID          = "Vault_AWS_Secret_Id"
	VAULT_AWS_FETCH_TIMEOUT      = "Vault_AWS_Fetch_Timeout"
	PROVIDER_HTTP_TIMEOUT        = "Provider_HTTP_Timeout"
	PROVIDER_REQUESTS_PER_SECOND = "Provider_Requests_Per_Second"
	PROVIDER_REQUEST_BURST       = "Provider_Request_Burst"
	PROVIDER_PAGE_SIZE           = "Provider_Page_Size"
	PROVIDER_TOKEN_CACHE_SIZE    = "Provider_Token_Cache_Size"
	PROVIDER_CA_CERT_FILE        = "Provider_CA_Cert_File"
	RETRY_BASE_DELAY             = "Retry_Base_Delay"
	RETRY_MULTIPLIER             = "Retry_Multiplier"
	RETRY_MAX_DELAY              = "Retry_Max_Delay"
	RETRY_MAX_ATTEMPTS           = "Retry_Max_Attempts"
	RETRY_DEFAULT_RATE_LIMIT     = "Retry_Default_Rate_Limit_Wait"
	SYNC_RUN_BUDGET              = "Sync_Run_Budget"
	SYNC_ENTITY_CONCURRENCY      = "Sync_Entity_Concurrency"
	SCHEDULER_TICK               = "Scheduler_Tick"
	SCHEDULER_WORKERS            = "Scheduler_Workers"
	SCHEDULER_QUEUE_SIZE         = "Scheduler_Queue_Size"
	DEFAULT_FUZZY_THRESHOLD      = "Default_Fuzzy_Match_Threshold"
)

type Config struct {
	UrlAppName                  string
	UrlPathPrefix               string
	UrlBasePath                 string
	HttpShutdownTimeout         time.Duration
	ServiceToServiceCredentials map[string]interface{}
	Profile                     bool
	OpenApiSpecFilePath         string
	ApiPort                     int
	MetricsPort                 int

	StoreImpl                  string
	DatabaseHost               string
	DatabasePort               int
	DatabaseUser               string
	DatabasePassword           string
	DatabaseName               string
	DatabaseSslMode            string
	DatabaseSslRootCert        string
	DatabaseMaxOpenConnections int
	DatabaseQueryTimeout       time.Duration

	KafkaBrokers              []string
	EventsImpl                string
	KafkaSyncEventsTopic      string
	KafkaSyncEventsBatchSize  int
	KafkaSyncEventsBatchBytes int
	KafkaSyncRequestsTopic    string
	KafkaSyncRequestsGroupID  string
	KafkaSASLMechanism        string
	KafkaUsername             string
	KafkaPassword             string
	KafkaCA                   string

	VaultMasterKeyImpl     string
	VaultMasterKey         string
	VaultAwsRegion         string
	VaultAwsSecretId       string
	VaultAwsFetchTimeout   time.Duration
	ProviderHttpTimeout    time.Duration
	ProviderRequestsPerSec float64
	ProviderRequestBurst   int
	ProviderPageSize       int
	ProviderTokenCacheSize int
	ProviderCACertFile     string

	RetryBaseDelay            time.Duration
	RetryMultiplier           float64
	RetryMaxDelay             time.Duration
	RetryMaxAttempts          int
	RetryDefaultRateLimitWait time.Duration

	SyncRunBudget              time.Duration
	SyncEntityConcurrency      int
	SchedulerTick              time.Duration
	SchedulerWorkers           int
	SchedulerQueueSize         int
	DefaultFuzzyMatchThreshold int
}

func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", URL_PATH_PREFIX, c.UrlPathPrefix)
	fmt.Fprintf(&b, "%s: %s\n", URL_APP_NAME, c.UrlAppName)
	fmt.Fprintf(&b, "%s: %s\n", URL_BASE_PATH, c.UrlBasePath)
	fmt.Fprintf(&b, "%s: %s\n", HTTP_SHUTDOWN_TIMEOUT, c.HttpShutdownTimeout)
	fmt.Fprintf(&b, "%s: %t\n", PROFILE, c.Profile)
	fmt.Fprintf(&b, "%s: %s\n", OPENAPI_SPEC_FILE_PATH, c.OpenApiSpecFilePath)
	fmt.Fprintf(&b, "%s: %s\n", STORE_IMPL, c.StoreImpl)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_HOST, c.DatabaseHost)
	fmt.Fprintf(&b, "%s: %d\n", DATABASE_PORT, c.DatabasePort)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_USER, c.DatabaseUser)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_NAME, c.DatabaseName)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_SSL_MODE, c.DatabaseSslMode)
	fmt.Fprintf(&b, "%s: %d\n", DATABASE_MAX_OPEN_CONNS, c.DatabaseMaxOpenConnections)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_QUERY_TIMEOUT, c.DatabaseQueryTimeout)
	fmt.Fprintf(&b, "%s: %s\n", BROKERS, c.KafkaBrokers)
	fmt.Fprintf(&b, "%s: %s\n", EVENTS_IMPL, c.EventsImpl)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_EVENTS_TOPIC, c.KafkaSyncEventsTopic)
	fmt.Fprintf(&b, "%s: %d\n", SYNC_EVENTS_BATCH_SIZE, c.KafkaSyncEventsBatchSize)
	fmt.Fprintf(&b, "%s: %d\n", SYNC_EVENTS_BATCH_BYTES, c.KafkaSyncEventsBatchBytes)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_REQUESTS_TOPIC, c.KafkaSyncRequestsTopic)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_REQUESTS_GROUP_ID, c.KafkaSyncRequestsGroupID)
	fmt.Fprintf(&b, "%s: %s\n", KAFKA_SASL_MECHANISM, c.KafkaSASLMechanism)
	fmt.Fprintf(&b, "%s: %s\n", VAULT_MASTER_KEY_IMPL, c.VaultMasterKeyImpl)
	fmt.Fprintf(&b, "%s: %s\n", VAULT_AWS_REGION, c.VaultAwsRegion)
	fmt.Fprintf(&b, "%s: %s\n", VAULT_AWS_SECRET_ID, c.VaultAwsSecretId)
	fmt.Fprintf(&b, "%s: %s\n", PROVIDER_HTTP_TIMEOUT, c.ProviderHttpTimeout)
	fmt.Fprintf(&b, "%s: %f\n", PROVIDER_REQUESTS_PER_SECOND, c.ProviderRequestsPerSec)
	fmt.Fprintf(&b, "%s: %d\n", PROVIDER_REQUEST_BURST, c.ProviderRequestBurst)
	fmt.Fprintf(&b, "%s: %d\n", PROVIDER_PAGE_SIZE, c.ProviderPageSize)
	fmt.Fprintf(&b, "%s: %d\n", PROVIDER_TOKEN_CACHE_SIZE, c.ProviderTokenCacheSize)
	fmt.Fprintf(&b, "%s: %s\n", PROVIDER_CA_CERT_FILE, c.ProviderCACertFile)
	fmt.Fprintf(&b, "%s: %s\n", RETRY_BASE_DELAY, c.RetryBaseDelay)
	fmt.Fprintf(&b, "%s: %f\n", RETRY_MULTIPLIER, c.RetryMultiplier)
	fmt.Fprintf(&b, "%s: %s\n", RETRY_MAX_DELAY, c.RetryMaxDelay)
	fmt.Fprintf(&b, "%s: %d\n", RETRY_MAX_ATTEMPTS, c.RetryMaxAttempts)
	fmt.Fprintf(&b, "%s: %s\n", RETRY_DEFAULT_RATE_LIMIT, c.RetryDefaultRateLimitWait)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_RUN_BUDGET, c.SyncRunBudget)
	fmt.Fprintf(&b, "%s: %d\n", SYNC_ENTITY_CONCURRENCY, c.SyncEntityConcurrency)
	fmt.Fprintf(&b, "%s: %s\n", SCHEDULER_TICK, c.SchedulerTick)
	fmt.Fprintf(&b, "%s: %d\n", SCHEDULER_WORKERS, c.SchedulerWorkers)
	fmt.Fprintf(&b, "%s: %d\n", SCHEDULER_QUEUE_SIZE, c.SchedulerQueueSize)
	fmt.Fprintf(&b, "%s: %d\n", DEFAULT_FUZZY_THRESHOLD, c.DefaultFuzzyMatchThreshold)

	return b.String()
}

func GetConfig() *Config {
	options := viper.New()

	options.SetDefault(URL_PATH_PREFIX, "api")
	options.SetDefault(URL_APP_NAME, "psa-sync")
	options.SetDefault(HTTP_SHUTDOWN_TIMEOUT, 2)
	options.SetDefault(SERVICE_TO_SERVICE_CREDENTIALS, "")
	options.SetDefault(PROFILE, false)
	options.SetDefault(OPENAPI_SPEC_FILE_PATH, "/opt/app-root/src/api/api.spec.json")

	options.SetDefault(STORE_IMPL, "postgres")
	options.SetDefault(DATABASE_HOST, "localhost")
	options.SetDefault(DATABASE_PORT, 5432)
	options.SetDefault(DATABASE_USER, "psasync")
	options.SetDefault(DATABASE_PASSWORD, "insertsomethingclevererhere")
	options.SetDefault(DATABASE_NAME, "psa-sync")
	options.SetDefault(DATABASE_SSL_MODE, "disable")
	options.SetDefault(DATABASE_SSL_ROOT_CERT, "db_ssl_root_cert.pem")
	options.SetDefault(DATABASE_MAX_OPEN_CONNS, 20)
	options.SetDefault(DATABASE_QUERY_TIMEOUT, DEFAULT_DATABASE_QUERY_SECS)

	options.SetDefault(BROKERS, []string{DEFAULT_BROKER_ADDRESS})
	options.SetDefault(EVENTS_IMPL, "kafka")
	options.SetDefault(SYNC_EVENTS_TOPIC, SYNC_EVENTS_TOPIC_DEFAULT)
	options.SetDefault(SYNC_EVENTS_BATCH_SIZE, 100)
	options.SetDefault(SYNC_EVENTS_BATCH_BYTES, 1048576)
	options.SetDefault(SYNC_REQUESTS_TOPIC, SYNC_REQUESTS_TOPIC_DEFAULT)
	options.SetDefault(SYNC_REQUESTS_GROUP_ID, SYNC_REQUESTS_GROUP_DEFAULT)
	options.SetDefault(KAFKA_SASL_MECHANISM, "scram-sha-512")

	options.SetDefault(VAULT_MASTER_KEY_IMPL, "env")
	options.SetDefault(VAULT_AWS_REGION, "us-east-1")
	options.SetDefault(VAULT_AWS_FETCH_TIMEOUT, 10)

	options.SetDefault(PROVIDER_HTTP_TIMEOUT, 30)
	options.SetDefault(PROVIDER_REQUESTS_PER_SECOND, 8.0)
	options.SetDefault(PROVIDER_REQUEST_BURST, 4)
	options.SetDefault(PROVIDER_PAGE_SIZE, 100)
	options.SetDefault(PROVIDER_TOKEN_CACHE_SIZE, 1024)
	options.SetDefault(PROVIDER_CA_CERT_FILE, "")

	options.SetDefault(RETRY_BASE_DELAY, 1000)
	options.SetDefault(RETRY_MULTIPLIER, 2.0)
	options.SetDefault(RETRY_MAX_DELAY, 30)
	options.SetDefault(RETRY_MAX_ATTEMPTS, 5)
	options.SetDefault(RETRY_DEFAULT_RATE_LIMIT, 5)

	options.SetDefault(SYNC_RUN_BUDGET, 30)
	options.SetDefault(SYNC_ENTITY_CONCURRENCY, 4)
	options.SetDefault(SCHEDULER_TICK, 60)
	options.SetDefault(SCHEDULER_WORKERS, 4)
	options.SetDefault(SCHEDULER_QUEUE_SIZE, 64)
	options.SetDefault(DEFAULT_FUZZY_THRESHOLD, 85)

	options.SetEnvPrefix(ENV_PREFIX)
	options.AutomaticEnv()

	cfg := &Config{
		UrlPathPrefix:               options.GetString(URL_PATH_PREFIX),
		UrlAppName:                  options.GetString(URL_APP_NAME),
		UrlBasePath:                 buildUrlBasePath(options.GetString(URL_PATH_PREFIX), options.GetString(URL_APP_NAME)),
		HttpShutdownTimeout:         options.GetDuration(HTTP_SHUTDOWN_TIMEOUT) * time.Second,
		ServiceToServiceCredentials: options.GetStringMap(SERVICE_TO_SERVICE_CREDENTIALS),
		Profile:                     options.GetBool(PROFILE),
		OpenApiSpecFilePath:         options.GetString(OPENAPI_SPEC_FILE_PATH),
		ApiPort:                     8000,
		MetricsPort:                 9000,

		StoreImpl:                  options.GetString(STORE_IMPL),
		DatabaseHost:               options.GetString(DATABASE_HOST),
		DatabasePort:               options.GetInt(DATABASE_PORT),
		DatabaseUser:               options.GetString(DATABASE_USER),
		DatabasePassword:           options.GetString(DATABASE_PASSWORD),
		DatabaseName:               options.GetString(DATABASE_NAME),
		DatabaseSslMode:            options.GetString(DATABASE_SSL_MODE),
		DatabaseSslRootCert:        options.GetString(DATABASE_SSL_ROOT_CERT),
		DatabaseMaxOpenConnections: options.GetInt(DATABASE_MAX_OPEN_CONNS),
		DatabaseQueryTimeout:       options.GetDuration(DATABASE_QUERY_TIMEOUT) * time.Second,

		KafkaBrokers:              options.GetStringSlice(BROKERS),
		EventsImpl:                options.GetString(EVENTS_IMPL),
		KafkaSyncEventsTopic:      options.GetString(SYNC_EVENTS_TOPIC),
		KafkaSyncEventsBatchSize:  options.GetInt(SYNC_EVENTS_BATCH_SIZE),
		KafkaSyncEventsBatchBytes: options.GetInt(SYNC_EVENTS_BATCH_BYTES),
		KafkaSyncRequestsTopic:    options.GetString(SYNC_REQUESTS_TOPIC),
		KafkaSyncRequestsGroupID:  options.GetString(SYNC_REQUESTS_GROUP_ID),
		KafkaSASLMechanism:        options.GetString(KAFKA_SASL_MECHANISM),
		KafkaUsername:             options.GetString(KAFKA_USERNAME),
		KafkaPassword:             options.GetString(KAFKA_PASSWORD),
		KafkaCA:                   options.GetString(KAFKA_CA),

		VaultMasterKeyImpl:     options.GetString(VAULT_MASTER_KEY_IMPL),
		VaultMasterKey:         options.GetString(VAULT_MASTER_KEY),
		VaultAwsRegion:         options.GetString(VAULT_AWS_REGION),
		VaultAwsSecretId:       options.GetString(VAULT_AWS_SECRET_ID),
		VaultAwsFetchTimeout:   options.GetDuration(VAULT_AWS_FETCH_TIMEOUT) * time.Second,
		ProviderHttpTimeout:    options.GetDuration(PROVIDER_HTTP_TIMEOUT) * time.Second,
		ProviderRequestsPerSec: options.GetFloat64(PROVIDER_REQUESTS_PER_SECOND),
		ProviderRequestBurst:   options.GetInt(PROVIDER_REQUEST_BURST),
		ProviderPageSize:       options.GetInt(PROVIDER_PAGE_SIZE),
		ProviderTokenCacheSize: options.GetInt(PROVIDER_TOKEN_CACHE_SIZE),
		ProviderCACertFile:     options.GetString(PROVIDER_CA_CERT_FILE),

		RetryBaseDelay:            options.GetDuration(RETRY_BASE_DELAY) * time.Millisecond,
		RetryMultiplier:           options.GetFloat64(RETRY_MULTIPLIER),
		RetryMaxDelay:             options.GetDuration(RETRY_MAX_DELAY) * time.Second,
		RetryMaxAttempts:          options.GetInt(RETRY_MAX_ATTEMPTS),
		RetryDefaultRateLimitWait: options.GetDuration(RETRY_DEFAULT_RATE_LIMIT) * time.Second,

		SyncRunBudget:              options.GetDuration(SYNC_RUN_BUDGET) * time.Minute,
		SyncEntityConcurrency:      options.GetInt(SYNC_ENTITY_CONCURRENCY),
		SchedulerTick:              options.GetDuration(SCHEDULER_TICK) * time.Second,
		SchedulerWorkers:           options.GetInt(SCHEDULER_WORKERS),
		SchedulerQueueSize:         options.GetInt(SCHEDULER_QUEUE_SIZE),
		DefaultFuzzyMatchThreshold: options.GetInt(DEFAULT_FUZZY_THRESHOLD),
	}

	if clowder.IsClowderEnabled() {
		applyClowderConfig(cfg)
	}

	return cfg
}

func applyClowderConfig(cfg *Config) {
	appConfig := clowder.LoadedConfig

	cfg.MetricsPort = appConfig.MetricsPort
	if appConfig.PublicPort != nil {
		cfg.ApiPort = *appConfig.PublicPort
	}

	if appConfig.Database != nil {
		cfg.DatabaseHost = appConfig.Database.Hostname
		cfg.DatabasePort = appConfig.Database.Port
		cfg.DatabaseUser = appConfig.Database.Username
		cfg.DatabasePassword = appConfig.Database.Password
		cfg.DatabaseName = appConfig.Database.Name
		cfg.DatabaseSslMode = appConfig.Database.SslMode
	}

	if appConfig.Kafka != nil && len(appConfig.Kafka.Brokers) > 0 {
		brokers := make([]string, 0, len(appConfig.Kafka.Brokers))
		for _, broker := range appConfig.Kafka.Brokers {
			if broker.Port != nil {
				brokers = append(brokers, fmt.Sprintf("%s:%d", broker.Hostname, *broker.Port))
			} else {
				brokers = append(brokers, broker.Hostname)
			}
		}
		cfg.KafkaBrokers = brokers
	}

	if topic, ok := clowder.KafkaTopics[SYNC_EVENTS_TOPIC_DEFAULT]; ok {
		cfg.KafkaSyncEventsTopic = topic.Name
	}
	if topic, ok := clowder.KafkaTopics[SYNC_REQUESTS_TOPIC_DEFAULT]; ok {
		cfg.KafkaSyncRequestsTopic = topic.Name
	}
}

func buildUrlBasePath(pathPrefix string, appName string) string {
	return fmt.Sprintf("/%s/%s/v1", pathPrefix, appName)
}
