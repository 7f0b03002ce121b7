package telegram

import (
	"context"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pavangelika/currency-rate-bot/internal/banks"
	"github.com/pavangelika/currency-rate-bot/internal/domain"
	"github.com/pavangelika/currency-rate-bot/internal/geo"
	"github.com/pavangelika/currency-rate-bot/internal/rates"
	"github.com/pavangelika/currency-rate-bot/internal/schedule"
	"github.com/pavangelika/currency-rate-bot/internal/store"
)

// selection tracks an in-progress currency pick (not persisted; saving
// writes it to the store).
type selection struct {
	page  int
	codes map[string]bool
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot   *tgbotapi.BotAPI
	log   *zap.Logger
	repo  store.Repo
	rates *rates.Client
	subs  *schedule.Service
	banks *banks.Scraper
	geo   *geo.Client

	mu        sync.RWMutex
	selecting map[int64]*selection // chatID -> pending currency pick
	catalogue []domain.Currency    // lazy-loaded CBR currency list
}

// NewRouter creates a new Telegram router.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, repo store.Repo,
	ratesClient *rates.Client, subs *schedule.Service,
	banksScraper *banks.Scraper, geoClient *geo.Client) *Router {
	return &Router{
		bot:       bot,
		log:       log,
		repo:      repo,
		rates:     ratesClient,
		subs:      subs,
		banks:     banksScraper,
		geo:       geoClient,
		selecting: make(map[int64]*selection),
	}
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID

		if msg.Location != nil {
			r.handleLocation(ctx, chatID, msg.Location.Latitude, msg.Location.Longitude)
			return
		}

		text := strings.TrimSpace(msg.Text)
		switch {
		case strings.HasPrefix(text, "/start"):
			r.handleStart(ctx, msg)
		case strings.HasPrefix(text, "/select_rate"):
			r.handleSelectRate(ctx, chatID)
		case strings.HasPrefix(text, "/currency"):
			r.handleCurrency(ctx, chatID)
		case strings.HasPrefix(text, "/today"):
			r.handleToday(ctx, chatID)
		case strings.HasPrefix(text, "/dynamic"):
			r.handleDynamic(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/dynamic")))
		case strings.HasPrefix(text, "/everyday"):
			r.handleEverydayStatus(ctx, chatID)
		case strings.HasPrefix(text, "/banks"):
			r.handleBanks(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/banks")))
		case strings.HasPrefix(text, "/remind"):
			r.handleRemind(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/remind")))
		default:
			// Unknown input is ignored, as the bot is command-driven.
		}
		return
	}

	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if cb.Message == nil {
			return
		}
		chatID := cb.Message.Chat.ID
		data := cb.Data

		switch {
		case strings.HasPrefix(data, "toggle_"):
			r.handleToggle(ctx, chatID, cb, data)
		case strings.HasPrefix(data, "page_"):
			r.handlePage(ctx, chatID, cb, data)
		case data == "save_sel":
			r.handleSaveSelection(ctx, chatID, cb)
		case data == "select_rate":
			r.answerCallback(cb.ID, "")
			r.handleSelectRate(ctx, chatID)
		case data == "today":
			r.answerCallback(cb.ID, "")
			r.handleToday(ctx, chatID)
		case data == "everyday":
			r.answerCallback(cb.ID, "")
			r.handleEverydayToggle(ctx, chatID)
		default:
			r.answerCallback(cb.ID, "")
		}
		return
	}
}

// SendMessage sends a plain text message to the given chat.
// This makes Router satisfy notify.Sender.
func (r *Router) SendMessage(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (r *Router) sendText(chatID int64, text string) {
	if err := r.SendMessage(chatID, text); err != nil {
		r.log.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) answerCallback(id, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		r.log.Warn("answer callback failed", zap.Error(err))
	}
}

// currencyCatalogue lazily loads and caches the CBR currency list.
func (r *Router) currencyCatalogue(ctx context.Context) ([]domain.Currency, error) {
	r.mu.RLock()
	cat := r.catalogue
	r.mu.RUnlock()
	if cat != nil {
		return cat, nil
	}

	cat, err := r.rates.Catalogue(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.catalogue = cat
	r.mu.Unlock()
	return cat, nil
}

func (r *Router) getSelection(chatID int64) *selection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selecting[chatID]
}

func (r *Router) setSelection(chatID int64, s *selection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selecting[chatID] = s
}

func (r *Router) clearSelection(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.selecting, chatID)
}

func parsePageSuffix(data, prefix string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(data, prefix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
