package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики ядра матчинга
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах
// - Анализ производительности в production

// ============ Метрики латентности ============

// MatchLatency - время одного прогона матчера по пулу
var MatchLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "match_latency_ms",
		Help:      "Time to match an incoming order against the pool in milliseconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
	},
	[]string{"pair"},
)

// PersistLatency - время транзакционного сохранения результатов сведения
var PersistLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "persist_latency_ms",
		Help:      "Time to persist modified orders and deals in milliseconds",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	},
	[]string{"pair"},
)

// ============ Счётчики событий ============

// ActionsProcessed - обработанные действия пулов по типам
var ActionsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "actions_processed_total",
		Help:      "Total number of processed pool actions",
	},
	[]string{"pair", "action"}, // create, cancel, external_result, auto_unblock, update_liquidity, remove_orderbook
)

// DealsCreated - созданные сделки
var DealsCreated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "deals_created_total",
		Help:      "Total number of deals created",
	},
	[]string{"pair"},
)

// ExternalBlocks - блокировки объёма по внешним сведениям
var ExternalBlocks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "external_blocks_total",
		Help:      "Total number of external trade blocks created",
	},
	[]string{"pair"},
)

// AutoUnblocks - принудительные разблокировки по таймауту.
// Рост метрики - аномалия фида ликвидности.
var AutoUnblocks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "auto_unblocks_total",
		Help:      "Total number of forced unblocks after confirmation timeout",
	},
	[]string{"pair"},
)

// SuppressedCreates - входящие ордера, отброшенные по deleted-keeper
var SuppressedCreates = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "suppressed_creates_total",
		Help:      "Total number of creates suppressed by the deleted orders keeper",
	},
)

// CrossedBookDetected - нарушения инварианта bid_max < ask_min после
// обработки действия. Никогда не должно расти.
var CrossedBookDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "crossed_book_total",
		Help:      "Times the best bid exceeded the best ask after processing",
	},
	[]string{"pair"},
)

// PersistFailures - неудачные транзакции сохранения
var PersistFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "persist_failures_total",
		Help:      "Total number of failed persistence transactions",
	},
	[]string{"pair"},
)

// ============ Gauges ============

// QueueDepth - глубина очереди действий пула
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "queue_depth",
		Help:      "Current depth of the pool action queue",
	},
	[]string{"pair"},
)

// PoolOrders - количество активных ордеров в пуле
var PoolOrders = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "pool_orders",
		Help:      "Current number of resting orders in the pool",
	},
	[]string{"pair"},
)

// ActivePools - количество запущенных пулов
var ActivePools = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "exchange",
		Subsystem: "matching",
		Name:      "active_pools",
		Help:      "Current number of running matching pools",
	},
)
