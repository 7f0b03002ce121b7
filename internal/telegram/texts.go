package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pavangelika/currency-rate-bot/internal/domain"
)

const (
	startText = "👋 Я бот курсов валют ЦБ РФ.\n\n" +
		"Выберите валюты через /select_rate, смотрите курс через /today " +
		"и подпишитесь на ежедневную рассылку — я напишу, когда курс изменится."
	selectRateText = "Выберите одну или несколько валют для получения актуальных данных по валютному курсу:"
	selectedHeader = "Выбранные валюты:"

	useStartText        = "Сначала отправьте /start"
	noSelectionText     = "Валюты не выбраны. Используйте /select_rate"
	nothingSelectedText = "Ничего не выбрано"
	staleKeyboardText   = "Клавиатура устарела, откройте /select_rate заново"
	savedText           = "Сохранено ✅"
	errText             = "Что-то пошло не так, попробуйте позже"

	subscribedText         = "Вы подписаны на ежедневную рассылку курса валют"
	unsubscribedText       = "Вы отписаны от ежедневной рассылки курса валют"
	subscribedStatusText   = "Рассылка включена. Я напишу, когда курс изменится."
	unsubscribedStatusText = "Рассылка выключена."

	ratesUnavailableText = "Не удалось получить данные ЦБ, попробуйте позже"
	banksUsageText       = "Укажите город: /banks Москва — или отправьте геолокацию"
	banksUnavailableText = "Не удалось получить список банков, попробуйте позже"
	cityNotFoundText     = "Город не найден"
	geoFailedText        = "Не удалось определить город по координатам"

	remindUsageText    = "Формат: /remind 30m текст напоминания (или /remind off)"
	reminderOnText     = "Напоминание включено 🔔"
	reminderOffText    = "Напоминание выключено"
	reminderExistsText = "Напоминание уже настроено. Сначала /remind off"
)

const currenciesPerPage = 8

func formatSelection(sel []domain.Currency) string {
	lines := make([]string, len(sel))
	for i, c := range sel {
		lines[i] = fmt.Sprintf("%s (%s)", c.Name, c.CharCode)
	}
	return strings.Join(lines, "\n")
}

// actionsKeyboard is the inline menu shown under selection and status
// messages; the subscription button text follows the current state.
func actionsKeyboard(subscribed bool) tgbotapi.InlineKeyboardMarkup {
	toggle := "🔔 Подписаться на рассылку"
	if subscribed {
		toggle = "🔕 Отписаться от рассылки"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💱 Выбор валюты", "select_rate"),
			tgbotapi.NewInlineKeyboardButtonData("📈 Курс сегодня", "today"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, "everyday"),
		),
	)
}

// selectionKeyboard renders one page of the currency catalogue with
// check marks on picked entries, pagination arrows and a save button.
func selectionKeyboard(cat []domain.Currency, page int, picked map[string]bool) tgbotapi.InlineKeyboardMarkup {
	pages := (len(cat) + currenciesPerPage - 1) / currenciesPerPage
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * currenciesPerPage
	end := start + currenciesPerPage
	if end > len(cat) {
		end = len(cat)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range cat[start:end] {
		label := fmt.Sprintf("%s — %s", c.CharCode, c.Name)
		if picked[c.CharCode] {
			label = "✅ " + label
		}
		data := fmt.Sprintf("toggle_%s_%d", c.CharCode, page)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, data),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("page_%d", page-1)))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d/%d", page, pages), fmt.Sprintf("page_%d", page)))
	if page < pages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("page_%d", page+1)))
	}
	rows = append(rows, nav)

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Сохранить", "save_sel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
