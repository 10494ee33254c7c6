// Package matching реализует ядро сведения ордеров: чистый матчер
// цена/время, последовательные пулы обработки по валютным парам,
// реестр пулов и учёт блокировок по внешним (импортированным) ордерам.
package matching

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// ExternalTradeFunc вызывается матчером при сведении с внешним ордером.
// Не должна блокировать и не должна мутировать состояние матчинга:
// ошибки доставки - fire-and-forget, логируются получателем.
type ExternalTradeFunc func(bid, ask *models.Order)

// Matcher - чистая функция сведения: по текущему пулу и входящему ордеру
// вычисляет изменённые ордера и новые сделки. Никакого I/O, единственный
// разрешённый side effect - колбэк onExternalTrade.
type Matcher struct {
	onExternalTrade ExternalTradeFunc
}

// NewMatcher создает матчер. fn может быть nil (внешние сведения
// тогда только блокируют объём без уведомления).
func NewMatcher(fn ExternalTradeFunc) *Matcher {
	return &Matcher{onExternalTrade: fn}
}

// Match сводит входящий ордер с пулом встречных.
//
// Приоритет: сначала лучшая цена (для bid - самый дешёвый ask, для ask -
// самый дорогой bid), при равной цене - порядок в пуле (время прихода).
//
// Локальное сведение создаёт Deal по цене ордера из пула и увеличивает
// Fulfilled обеих сторон. Если одна из сторон внешняя, Deal не создаётся:
// объём блокируется на обеих сторонах до подтверждения внешней биржей,
// и вызывается onExternalTrade.
//
// Возвращает затронутые ордера (без дублей) и новые сделки. Полностью
// несведённый входящий ордер даёт пустые результаты - добавление его
// в пул остаётся за вызывающим.
func (m *Matcher) Match(pool []*models.Order, incoming *models.Order) ([]*models.Order, []*models.Deal) {
	candidates := m.selectCandidates(pool, incoming)
	if len(candidates) == 0 {
		return nil, nil
	}

	var deals []*models.Deal
	touched := make(map[string]*models.Order)

	for _, candidate := range candidates {
		if !incoming.AvailableAmount().IsPositive() {
			break
		}

		fulfilment := decimalMin(incoming.AvailableAmount(), candidate.AvailableAmount())
		if !fulfilment.IsPositive() {
			continue
		}

		bid, ask := sides(incoming, candidate)

		if isExternalTrade(incoming, candidate) {
			// Сведение с внешней стороной: объём блокируется до
			// подтверждения, сделка будет создана при ExternalTradeResult
			incoming.Blocked = incoming.Blocked.Add(fulfilment)
			incoming.LiquidityBlocksCount++
			candidate.Blocked = candidate.Blocked.Add(fulfilment)
			candidate.LiquidityBlocksCount++

			if m.onExternalTrade != nil {
				m.onExternalTrade(bid, ask)
			}
		} else {
			deals = append(deals, &models.Deal{
				ID:                  uuid.NewString(),
				DateCreated:         time.Now().UTC(),
				Price:               candidate.Price,
				Volume:              fulfilment,
				BidID:               bid.ID,
				AskID:               ask.ID,
				PairCode:            incoming.PairCode,
				FromInnerTradingBot: bid.FromInnerTradingBot,
			})

			incoming.Fulfilled = incoming.Fulfilled.Add(fulfilment)
			candidate.Fulfilled = candidate.Fulfilled.Add(fulfilment)
		}

		touched[candidate.ID] = candidate
		touched[incoming.ID] = incoming
	}

	if len(touched) == 0 {
		return nil, nil
	}

	// Порядок: сначала ордера пула в порядке их обхода, входящий - последним
	modified := make([]*models.Order, 0, len(touched))
	for _, candidate := range candidates {
		if o, ok := touched[candidate.ID]; ok {
			modified = append(modified, o)
			delete(touched, candidate.ID)
		}
	}
	if o, ok := touched[incoming.ID]; ok {
		modified = append(modified, o)
	}

	return modified, deals
}

// selectCandidates отбирает встречные ордера, упорядоченные по приоритету
// цены; при равных ценах сохраняется порядок пула (stable sort).
func (m *Matcher) selectCandidates(pool []*models.Order, incoming *models.Order) []*models.Order {
	var candidates []*models.Order

	for _, o := range pool {
		if o.IsBid == incoming.IsBid {
			continue
		}
		if !o.IsActive() {
			continue
		}
		if o.PairCode != incoming.PairCode {
			continue
		}
		// Не более одной внешней стороны в сведении
		if !incoming.IsLocal() && !o.IsLocal() {
			continue
		}
		// Ордера внутреннего бота сводятся только между собой
		if o.FromInnerTradingBot != incoming.FromInnerTradingBot {
			continue
		}
		if incoming.IsBid {
			if o.Price.GreaterThan(incoming.Price) {
				continue
			}
		} else {
			if o.Price.LessThan(incoming.Price) {
				continue
			}
		}
		candidates = append(candidates, o)
	}

	if incoming.IsBid {
		// Входящий bid: сначала самые дешёвые ask
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Price.LessThan(candidates[j].Price)
		})
	} else {
		// Входящий ask: сначала самые дорогие bid
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Price.GreaterThan(candidates[j].Price)
		})
	}

	return candidates
}

// isExternalTrade - true, если хотя бы одна сторона не локальная
func isExternalTrade(a, b *models.Order) bool {
	return !a.IsLocal() || !b.IsLocal()
}

// sides возвращает пару (bid, ask) из двух встречных ордеров
func sides(a, b *models.Order) (bid, ask *models.Order) {
	if a.IsBid {
		return a, b
	}
	return b, a
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
