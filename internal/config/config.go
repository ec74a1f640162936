// Package config reads the YAML configuration surface described in
// SPEC_FULL.md §6.3. Every tunable has a sane default and can be
// overridden by an environment variable, following a config->env->default
// precedence.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера и клиента.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	TickAdjust  TickAdjustConfig  `yaml:"tick_adjust"`
	Map         MapConfig         `yaml:"map"`
	Spawn       SpawnConfig       `yaml:"spawn"`
	Replication ReplicationConfig `yaml:"replication"`
	EventBus    EventBusConfig    `yaml:"eventbus"`
	Cache       CacheConfig       `yaml:"cache"`
}

// ServerConfig describes listen ports and connection limits (§6.3).
type ServerConfig struct {
	Port        int `yaml:"port"`
	MaxClients  int `yaml:"max_clients"`
	MetricsPort int `yaml:"metrics_port"`
}

// GetPort возвращает TCP порт сервера с fallback: config -> env -> default.
func (s *ServerConfig) GetPort() int {
	return getIntWithEnvFallback(s.Port, "GAME_SERVER_PORT", 41499)
}

// GetMaxClients возвращает предел одновременных подключений (MAX_CLIENTS).
func (s *ServerConfig) GetMaxClients() int {
	return getIntWithEnvFallback(s.MaxClients, "GAME_MAX_CLIENTS", 1010)
}

// GetMetricsPort возвращает порт Prometheus /metrics.
func (s *ServerConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(s.MetricsPort, "GAME_METRICS_PORT", 2112)
}

// SimulationConfig описывает тиковую шкалу и таймауты клиентов (§4.6, §6.3).
type SimulationConfig struct {
	TickTimestepMS   int     `yaml:"tick_timestep_ms"`
	DelayedTimeMS    int     `yaml:"delayed_time_ms"`
	ClientTimeoutS   float64 `yaml:"client_timeout_s"`
	AOIRadius        float64 `yaml:"aoi_radius"`
	MapSavePeriodS   float64 `yaml:"map_save_period_s"`
	PastTickOffset   uint32  `yaml:"past_tick_offset"`
	InactiveDelayMS  int     `yaml:"inactive_delay_ms"`
}

// TickTimestep возвращает продолжительность одного тика (SIM_TICK_TIMESTEP_S).
func (s *SimulationConfig) TickTimestep() time.Duration {
	if s.TickTimestepMS > 0 {
		return time.Duration(s.TickTimestepMS) * time.Millisecond
	}
	// 1/30 c по умолчанию
	return time.Second / 30
}

// DelayedTimeBudget возвращает SIM_DELAYED_TIME_S — порог для предупреждения
// о просроченном тике (§4.6 шаг 3).
func (s *SimulationConfig) DelayedTimeBudget() time.Duration {
	if s.DelayedTimeMS > 0 {
		return time.Duration(s.DelayedTimeMS) * time.Millisecond
	}
	return 50 * time.Millisecond
}

// ClientTimeout возвращает CLIENT_TIMEOUT_S.
func (s *SimulationConfig) ClientTimeout() time.Duration {
	if s.ClientTimeoutS > 0 {
		return time.Duration(s.ClientTimeoutS * float64(time.Second))
	}
	return 1500 * time.Millisecond
}

// AOIRadiusOrDefault возвращает AOI_RADIUS в мировых единицах.
func (s *SimulationConfig) AOIRadiusOrDefault() float64 {
	if s.AOIRadius > 0 {
		return s.AOIRadius
	}
	return 500
}

// MapSavePeriod возвращает MAP_SAVE_PERIOD_S.
func (s *SimulationConfig) MapSavePeriod() time.Duration {
	if s.MapSavePeriodS > 0 {
		return time.Duration(s.MapSavePeriodS * float64(time.Second))
	}
	return 15 * time.Minute
}

// PastTickOffsetOrDefault возвращает PAST_TICK_OFFSET для клиентской
// репликации NPC (§4.10).
func (s *SimulationConfig) PastTickOffsetOrDefault() uint32 {
	if s.PastTickOffset > 0 {
		return s.PastTickOffset
	}
	return 10
}

// InactiveDelay возвращает INACTIVE_DELAY_TIME_MS — таймаут опроса приёмного
// потока, когда нет готовых сокетов (§5).
func (s *SimulationConfig) InactiveDelay() time.Duration {
	if s.InactiveDelayMS > 0 {
		return time.Duration(s.InactiveDelayMS) * time.Millisecond
	}
	return time.Millisecond
}

// TickAdjustConfig описывает параметры контроллера коррекции тика (§4.8).
type TickAdjustConfig struct {
	HistoryS             float64 `yaml:"history_s"`
	AcceptableBoundLower int64   `yaml:"acceptable_bound_lower"`
	AcceptableBoundUpper int64   `yaml:"acceptable_bound_upper"`
	Target               int64   `yaml:"target"`
	MaxBoundLower        int64   `yaml:"max_bound_lower"`
	MaxBoundUpper        int64   `yaml:"max_bound_upper"`
	MinFreshDiffs        int     `yaml:"min_fresh_diffs"`
}

// HistoryLength возвращает TICKDIFF_HISTORY_LENGTH в тиках, по умолчанию
// вычисляется из TICKDIFF_HISTORY_S и SIM_TICK_TIMESTEP_S.
func (t *TickAdjustConfig) HistoryLength(tickTimestep time.Duration) int {
	historyS := t.HistoryS
	if historyS <= 0 {
		historyS = 0.5
	}
	steps := historyS / tickTimestep.Seconds()
	n := int(steps)
	if float64(n) < steps {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// AcceptableBounds возвращает [LOWER, UPPER] с дефолтами 1..3.
func (t *TickAdjustConfig) AcceptableBounds() (int64, int64) {
	lower, upper := t.AcceptableBoundLower, t.AcceptableBoundUpper
	if lower == 0 && upper == 0 {
		return 1, 3
	}
	return lower, upper
}

// TargetOrDefault возвращает TICKDIFF_TARGET.
func (t *TickAdjustConfig) TargetOrDefault() int64 {
	if t.Target != 0 {
		return t.Target
	}
	return 2
}

// MaxBounds возвращает [LOWER, UPPER] для force-disconnect, по умолчанию
// [-128, ceil(CLIENT_TIMEOUT_S / TICK_TIMESTEP_S)].
func (t *TickAdjustConfig) MaxBounds(clientTimeout, tickTimestep time.Duration) (int64, int64) {
	lower, upper := t.MaxBoundLower, t.MaxBoundUpper
	if lower == 0 {
		lower = -128
	}
	if upper == 0 {
		steps := clientTimeout.Seconds() / tickTimestep.Seconds()
		upper = int64(steps)
		if float64(upper) < steps {
			upper++
		}
		if upper > 127 {
			upper = 127
		}
	}
	return lower, upper
}

// MinFreshDiffsOrDefault возвращает MIN_FRESH_DIFFS.
func (t *TickAdjustConfig) MinFreshDiffsOrDefault() int {
	if t.MinFreshDiffs > 0 {
		return t.MinFreshDiffs
	}
	return 3
}

// MapConfig описывает константы тайловой карты (§6.3, §6.1).
type MapConfig struct {
	ChunkWidth            int    `yaml:"chunk_width"`
	DataPath              string `yaml:"data_path"`
	CompressionThreshold  int    `yaml:"compression_threshold_bytes"`
}

// ChunkWidthOrDefault возвращает CHUNK_WIDTH.
func (m *MapConfig) ChunkWidthOrDefault() int {
	if m.ChunkWidth > 0 {
		return m.ChunkWidth
	}
	return 16
}

// DataPathOrDefault возвращает путь к файлу сохранения карты (tilemap.Load/Save).
func (m *MapConfig) DataPathOrDefault() string {
	if m.DataPath != "" {
		return m.DataPath
	}
	return "data/world.bin"
}

// CompressionThresholdOrDefault возвращает порог сжатия пакета в байтах (§4.3).
func (m *MapConfig) CompressionThresholdOrDefault() int {
	if m.CompressionThreshold > 0 {
		return m.CompressionThreshold
	}
	return 256
}

// SpawnStrategy перечисляет стратегии спауна (§4.7).
type SpawnStrategy string

const (
	SpawnFixed    SpawnStrategy = "fixed"
	SpawnRandom   SpawnStrategy = "random"
	SpawnGrouped  SpawnStrategy = "grouped"
)

// SpawnConfig описывает параметры выбранной стратегии спауна.
type SpawnConfig struct {
	Strategy      SpawnStrategy `yaml:"strategy"`
	FixedX        float64       `yaml:"fixed_x"`
	FixedY        float64       `yaml:"fixed_y"`
	RandomMinX    float64       `yaml:"random_min_x"`
	RandomMaxX    float64       `yaml:"random_max_x"`
	RandomMinY    float64       `yaml:"random_min_y"`
	RandomMaxY    float64       `yaml:"random_max_y"`
	GroupColumns  int           `yaml:"group_columns"`
	GroupRows     int           `yaml:"group_rows"`
	GroupPaddingX float64       `yaml:"group_padding_x"`
	GroupPaddingY float64       `yaml:"group_padding_y"`
	GroupOffsetX  float64       `yaml:"group_offset_x"`
	GroupOffsetY  float64       `yaml:"group_offset_y"`
}

// StrategyOrDefault возвращает стратегию спауна, по умолчанию Fixed (в точке
// FixedX/FixedY, которая равна (0,0), если не задана).
func (s *SpawnConfig) StrategyOrDefault() SpawnStrategy {
	if s.Strategy != "" {
		return s.Strategy
	}
	return SpawnFixed
}

// ReplicationConfig описывает размеры буферов клиентского предиктора (§4.9).
type ReplicationConfig struct {
	InputHistoryCapacity int `yaml:"input_history_capacity"`
	HeartbeatIntervalMS  int `yaml:"heartbeat_interval_ms"`
}

// InputHistoryCapacityOrDefault возвращает ёмкость кольцевого буфера вводов.
// Должна покрывать худший RTT + задержку батча сервера, выраженные в тиках.
func (r *ReplicationConfig) InputHistoryCapacityOrDefault() int {
	if r.InputHistoryCapacity > 0 {
		return r.InputHistoryCapacity
	}
	return 128
}

// HeartbeatInterval возвращает период heartbeat клиента при отсутствии ввода.
func (r *ReplicationConfig) HeartbeatInterval() time.Duration {
	if r.HeartbeatIntervalMS > 0 {
		return time.Duration(r.HeartbeatIntervalMS) * time.Millisecond
	}
	return 500 * time.Millisecond
}

// EventBusConfig оставлена от шины скриптовых/региональных событий.
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// CacheConfig describes the hot-cache layer in front of chunk cold storage
// (internal/cache, internal/storage) — §6.3.
type CacheConfig struct {
	RedisURL             string  `yaml:"redis_url"`
	RedisPassword        string  `yaml:"redis_password"`
	RedisDB              int     `yaml:"redis_db"`
	DefaultTTLS          float64 `yaml:"default_ttl_s"`
	WriteBehindEnabled   bool    `yaml:"write_behind_enabled"`
	WriteBehindIntervalS float64 `yaml:"write_behind_interval_s"`
	WriteBehindBatchSize int     `yaml:"write_behind_batch_size"`
}

// DefaultTTL возвращает TTL записи в hot cache, по умолчанию 30с.
func (c *CacheConfig) DefaultTTL() time.Duration {
	if c.DefaultTTLS > 0 {
		return time.Duration(c.DefaultTTLS * float64(time.Second))
	}
	return 30 * time.Second
}

// WriteBehindInterval возвращает период сброса очереди Write-Behind.
func (c *CacheConfig) WriteBehindInterval() time.Duration {
	if c.WriteBehindIntervalS > 0 {
		return time.Duration(c.WriteBehindIntervalS * float64(time.Second))
	}
	return 5 * time.Second
}

// WriteBehindBatchSizeOrDefault возвращает размер пачки для Write-Behind.
func (c *CacheConfig) WriteBehindBatchSizeOrDefault() int {
	if c.WriteBehindBatchSize > 0 {
		return c.WriteBehindBatchSize
	}
	return 100
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	if configVal > 0 {
		return configVal
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultVal
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV GAME_CONFIG или возвращает
// пустой конфиг с дефолтами (не ошибка — весь Config состоит из Get*/OrDefault
// аксессоров, которые работают с нулевыми значениями).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GAME_CONFIG")
		if path == "" {
			return &Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
