package config

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type DispatcherType string

const DISPATCHER_TYPE_HTTP DispatcherType = "http"
const DISPATCHER_TYPE_LOG DispatcherType = "log"

type Config struct {
	RedisConfig        RedisStorageConfig
	HttpPort           int
	StorageType        StorageType
	DispatcherType     DispatcherType
	ChannelEndpoint    string
	AgentEndpoint      string
	HandoffEndpoint    string
	SqlitePath         string
	StepCap            int
	ResumeTickSeconds  int
	EnforceDeviceScope bool
	LogLevel           string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}
