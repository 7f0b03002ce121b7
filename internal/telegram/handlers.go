package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/pavangelika/currency-rate-bot/internal/banks"
	"github.com/pavangelika/currency-rate-bot/internal/domain"
	"github.com/pavangelika/currency-rate-bot/internal/store"
)

func (r *Router) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	u := &domain.User{
		UserID:    chatID,
		ChatID:    chatID,
		Timezone:  "Europe/Moscow",
		StartedAt: time.Now().UTC(),
	}
	if msg.From != nil {
		u.Name = msg.From.FirstName
		u.Username = msg.From.UserName
		u.IsBot = msg.From.IsBot
	}
	if err := r.repo.UpsertUser(ctx, u); err != nil {
		r.log.Error("upsert user failed", zap.Int64("user", chatID), zap.Error(err))
		r.sendText(chatID, errText)
		return
	}

	out := tgbotapi.NewMessage(chatID, startText)
	out.ReplyMarkup = actionsKeyboard(false)
	if _, err := r.bot.Send(out); err != nil {
		r.log.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) handleSelectRate(ctx context.Context, chatID int64) {
	cat, err := r.currencyCatalogue(ctx)
	if err != nil {
		r.log.Error("catalogue fetch failed", zap.Error(err))
		r.sendText(chatID, ratesUnavailableText)
		return
	}

	// Pre-fill the pick with the stored selection so re-opening the
	// keyboard edits instead of starting over.
	codes := map[string]bool{}
	if u, err := r.repo.GetUser(ctx, chatID); err == nil {
		for _, c := range u.Currencies {
			codes[c.CharCode] = true
		}
	}
	sel := &selection{page: 1, codes: codes}
	r.setSelection(chatID, sel)

	out := tgbotapi.NewMessage(chatID, selectRateText)
	out.ReplyMarkup = selectionKeyboard(cat, sel.page, sel.codes)
	if _, err := r.bot.Send(out); err != nil {
		r.log.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) handleToggle(ctx context.Context, chatID int64, cb *tgbotapi.CallbackQuery, data string) {
	sel := r.getSelection(chatID)
	if sel == nil {
		r.answerCallback(cb.ID, staleKeyboardText)
		return
	}

	// Format: toggle_<code>_<page>; char codes never contain "_".
	rest := strings.TrimPrefix(data, "toggle_")
	cut := strings.LastIndex(rest, "_")
	if cut <= 0 {
		r.answerCallback(cb.ID, "")
		return
	}
	code := rest[:cut]
	if page, ok := parsePageSuffix(rest[cut:], "_"); ok {
		sel.page = page
	}
	if sel.codes[code] {
		delete(sel.codes, code)
	} else {
		sel.codes[code] = true
	}

	r.answerCallback(cb.ID, "")
	r.refreshSelectionKeyboard(ctx, chatID, cb.Message.MessageID, sel)
}

func (r *Router) handlePage(ctx context.Context, chatID int64, cb *tgbotapi.CallbackQuery, data string) {
	sel := r.getSelection(chatID)
	if sel == nil {
		r.answerCallback(cb.ID, staleKeyboardText)
		return
	}
	if page, ok := parsePageSuffix(data, "page_"); ok {
		sel.page = page
	}
	r.answerCallback(cb.ID, "")
	r.refreshSelectionKeyboard(ctx, chatID, cb.Message.MessageID, sel)
}

func (r *Router) refreshSelectionKeyboard(ctx context.Context, chatID int64, messageID int, sel *selection) {
	cat, err := r.currencyCatalogue(ctx)
	if err != nil {
		r.log.Error("catalogue fetch failed", zap.Error(err))
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, selectionKeyboard(cat, sel.page, sel.codes))
	if _, err := r.bot.Send(edit); err != nil {
		r.log.Warn("edit keyboard failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) handleSaveSelection(ctx context.Context, chatID int64, cb *tgbotapi.CallbackQuery) {
	sel := r.getSelection(chatID)
	if sel == nil || len(sel.codes) == 0 {
		r.answerCallback(cb.ID, nothingSelectedText)
		return
	}
	cat, err := r.currencyCatalogue(ctx)
	if err != nil {
		r.answerCallback(cb.ID, "")
		r.sendText(chatID, ratesUnavailableText)
		return
	}

	var chosen []domain.Currency
	for _, c := range cat {
		if sel.codes[c.CharCode] {
			chosen = domain.AddCurrency(chosen, c)
		}
	}

	if err := r.repo.SetCurrencies(ctx, chatID, chosen); err != nil {
		r.log.Error("save selection failed", zap.Int64("user", chatID), zap.Error(err))
		r.answerCallback(cb.ID, "")
		r.sendText(chatID, errText)
		return
	}
	r.clearSelection(chatID)
	r.answerCallback(cb.ID, savedText)
	r.log.Info("currency selection saved",
		zap.Int64("user", chatID), zap.Int("count", len(chosen)))

	subscribed, _ := r.subs.Subscribed(ctx, chatID)
	out := tgbotapi.NewMessage(chatID, selectedHeader+"\n"+formatSelection(chosen))
	out.ReplyMarkup = actionsKeyboard(subscribed)
	if _, err := r.bot.Send(out); err != nil {
		r.log.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) handleCurrency(ctx context.Context, chatID int64) {
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.sendText(chatID, useStartText)
			return
		}
		r.log.Error("get user failed", zap.Int64("user", chatID), zap.Error(err))
		r.sendText(chatID, errText)
		return
	}
	if len(u.Currencies) == 0 {
		r.sendText(chatID, noSelectionText)
		return
	}

	out := tgbotapi.NewMessage(chatID, selectedHeader+"\n"+formatSelection(u.Currencies))
	out.ReplyMarkup = actionsKeyboard(u.Everyday)
	if _, err := r.bot.Send(out); err != nil {
		r.log.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) handleToday(ctx context.Context, chatID int64) {
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		r.sendText(chatID, useStartText)
		return
	}
	if len(u.Currencies) == 0 {
		r.sendText(chatID, noSelectionText)
		return
	}

	res, err := r.rates.Today(ctx, u.Currencies, domain.FormatDate(time.Now()))
	if err != nil {
		r.log.Warn("today fetch failed", zap.Int64("user", chatID), zap.Error(err))
		r.sendText(chatID, ratesUnavailableText)
		return
	}
	r.sendText(chatID, res.Text)
}

// handleDynamic serves "/dynamic [CHARCODE] [days]"; defaults are the
// first selected currency over the last 30 days.
func (r *Router) handleDynamic(ctx context.Context, chatID int64, args string) {
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		r.sendText(chatID, useStartText)
		return
	}
	if len(u.Currencies) == 0 {
		r.sendText(chatID, noSelectionText)
		return
	}

	cur := u.Currencies[0]
	days := 30
	for _, f := range strings.Fields(args) {
		if n, ok := parsePageSuffix(f, ""); ok {
			if n >= 1 && n <= 365 {
				days = n
			}
			continue
		}
		code := strings.ToUpper(f)
		for _, c := range u.Currencies {
			if c.CharCode == code {
				cur = c
				break
			}
		}
	}

	to := time.Now()
	text, err := r.rates.Dynamics(ctx, cur, to.AddDate(0, 0, -days), to)
	if err != nil {
		r.log.Warn("dynamics fetch failed", zap.Int64("user", chatID), zap.Error(err))
		r.sendText(chatID, ratesUnavailableText)
		return
	}
	r.sendText(chatID, text)
}

func (r *Router) handleEverydayStatus(ctx context.Context, chatID int64) {
	subscribed, err := r.subs.Subscribed(ctx, chatID)
	if err != nil {
		r.log.Error("subscription status failed", zap.Int64("user", chatID), zap.Error(err))
		r.sendText(chatID, errText)
		return
	}
	text := unsubscribedStatusText
	if subscribed {
		text = subscribedStatusText
	}
	out := tgbotapi.NewMessage(chatID, text)
	out.ReplyMarkup = actionsKeyboard(subscribed)
	if _, err := r.bot.Send(out); err != nil {
		r.log.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) handleEverydayToggle(ctx context.Context, chatID int64) {
	subscribed, err := r.subs.Subscribed(ctx, chatID)
	if err != nil {
		r.log.Error("subscription status failed", zap.Int64("user", chatID), zap.Error(err))
		r.sendText(chatID, errText)
		return
	}

	if subscribed {
		if err := r.subs.Unsubscribe(ctx, chatID); err != nil {
			r.log.Error("unsubscribe failed", zap.Int64("user", chatID), zap.Error(err))
			r.sendText(chatID, errText)
			return
		}
		r.sendText(chatID, unsubscribedText)
		return
	}

	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		r.sendText(chatID, useStartText)
		return
	}
	if len(u.Currencies) == 0 {
		r.sendText(chatID, noSelectionText)
		return
	}
	if err := r.subs.Subscribe(ctx, chatID); err != nil {
		r.log.Error("subscribe failed", zap.Int64("user", chatID), zap.Error(err))
		r.sendText(chatID, errText)
		return
	}
	r.sendText(chatID, subscribedText)
}

func (r *Router) handleBanks(ctx context.Context, chatID int64, city string) {
	if city == "" {
		r.sendText(chatID, banksUsageText)
		return
	}

	cities, err := r.banks.Cities(ctx)
	if err != nil {
		r.log.Warn("cities fetch failed", zap.Error(err))
		r.sendText(chatID, banksUnavailableText)
		return
	}

	link := ""
	for name, href := range cities {
		if strings.EqualFold(name, city) {
			link = href
			city = name
			break
		}
	}
	if link == "" {
		r.sendText(chatID, cityNotFoundText)
		return
	}

	branches, err := r.banks.Branches(ctx, link)
	if err != nil {
		r.log.Warn("branches fetch failed", zap.String("city", city), zap.Error(err))
		r.sendText(chatID, banksUnavailableText)
		return
	}
	r.sendText(chatID, banks.FormatBranches(city, branches))
}

func (r *Router) handleLocation(ctx context.Context, chatID int64, lat, lon float64) {
	city, err := r.geo.CityByCoordinates(ctx, lat, lon)
	if err != nil {
		r.log.Warn("reverse geocode failed", zap.Error(err))
		r.sendText(chatID, geoFailedText)
		return
	}
	r.handleBanks(ctx, chatID, city)
}

// handleRemind serves "/remind <duration> <text>" and "/remind off".
func (r *Router) handleRemind(_ context.Context, chatID int64, args string) {
	if args == "off" {
		r.subs.CancelReminder(chatID)
		r.sendText(chatID, reminderOffText)
		return
	}

	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 {
		r.sendText(chatID, remindUsageText)
		return
	}
	every, err := domain.ParseDurationHuman(parts[0])
	if err != nil {
		r.sendText(chatID, remindUsageText)
		return
	}
	text := strings.TrimSpace(parts[1])

	if r.subs.HasReminder(chatID) {
		r.sendText(chatID, reminderExistsText)
		return
	}
	if err := r.subs.ScheduleReminder(chatID, every, func() {
		r.sendText(chatID, "🔔 "+text)
	}); err != nil {
		r.log.Error("schedule reminder failed", zap.Int64("user", chatID), zap.Error(err))
		r.sendText(chatID, errText)
		return
	}
	r.sendText(chatID, reminderOnText)
}
