package rates

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/pavangelika/currency-rate-bot/internal/domain"
)

// ErrUnavailable marks transport or decoding failures against the rate
// source. A dispatch cycle treats it as a skip, never as fatal.
var ErrUnavailable = errors.New("rate source unavailable")

// Result is the outcome of a daily-rates fetch. Published=false means
// the source has no data for the requested date yet; that is a
// business state, not an error.
type Result struct {
	Text      string
	Published bool
}

// Client talks to the CBR XML endpoints (XML_daily.asp, XML_dynamic.asp).
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a rate source client. baseURL is the scripts root,
// e.g. "https://www.cbr.ru/scripts".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// CBR responses are windows-1251 encoded.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	if strings.EqualFold(charset, "windows-1251") {
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}

type valCurs struct {
	XMLName xml.Name `xml:"ValCurs"`
	Date    string   `xml:"Date,attr"`
	Valutes []valute `xml:"Valute"`
}

type valute struct {
	ID       string `xml:"ID,attr"`
	NumCode  string `xml:"NumCode"`
	CharCode string `xml:"CharCode"`
	Nominal  int    `xml:"Nominal"`
	Name     string `xml:"Name"`
	Value    string `xml:"Value"`
}

type dynCurs struct {
	XMLName xml.Name    `xml:"ValCurs"`
	Records []dynRecord `xml:"Record"`
}

type dynRecord struct {
	Date  string `xml:"Date,attr"`
	Value string `xml:"Value"`
}

func (c *Client) fetchXML(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	dec := xml.NewDecoder(resp.Body)
	dec.CharsetReader = charsetReader
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return nil
}

// NotPublishedText is the message shown when the source has no data
// for the requested date.
func NotPublishedText(date string) string {
	return fmt.Sprintf("Данные на %s не опубликованы", date)
}

// Today fetches rates for the given date (DD/MM/YYYY) and renders one
// "<Name> = <Value>" line per selected currency. When the source
// responds with a different (earlier) date, the requested day is not
// published yet and Result.Published is false.
func (c *Client) Today(ctx context.Context, sel []domain.Currency, date string) (Result, error) {
	if len(sel) == 0 {
		return Result{}, errors.New("empty currency selection")
	}

	var vc valCurs
	url := fmt.Sprintf("%s/XML_daily.asp?date_req=%s", c.baseURL, date)
	if err := c.fetchXML(ctx, url, &vc); err != nil {
		return Result{}, err
	}

	// The Date attribute uses DD.MM.YYYY; the request uses DD/MM/YYYY.
	if strings.ReplaceAll(vc.Date, ".", "/") != date {
		return Result{Text: NotPublishedText(date), Published: false}, nil
	}

	want := make(map[string]bool, len(sel))
	for _, s := range sel {
		want[s.CharCode] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Курс ЦБ РФ на %s:\n", date)
	matched := 0
	for _, v := range vc.Valutes {
		if !want[v.CharCode] {
			continue
		}
		fmt.Fprintf(&b, "%s = %s\n", v.Name, v.Value)
		matched++
	}
	if matched == 0 {
		return Result{}, fmt.Errorf("%w: no selected currency in response", ErrUnavailable)
	}
	return Result{Text: strings.TrimRight(b.String(), "\n"), Published: true}, nil
}

// Catalogue returns every currency the source currently publishes,
// sorted by char code. Used to build the selection keyboard.
func (c *Client) Catalogue(ctx context.Context) ([]domain.Currency, error) {
	var vc valCurs
	if err := c.fetchXML(ctx, c.baseURL+"/XML_daily.asp", &vc); err != nil {
		return nil, err
	}

	out := make([]domain.Currency, 0, len(vc.Valutes))
	for _, v := range vc.Valutes {
		out = append(out, domain.Currency{
			Name:     v.Name,
			CharCode: v.CharCode,
			ID:       v.ID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CharCode < out[j].CharCode })
	return out, nil
}

// Dynamics fetches the rate history of one currency over [from, to]
// and renders it as a text table, newest line last.
func (c *Client) Dynamics(ctx context.Context, cur domain.Currency, from, to time.Time) (string, error) {
	if cur.ID == "" {
		return "", fmt.Errorf("currency %s has no source id", cur.CharCode)
	}

	var dc dynCurs
	url := fmt.Sprintf("%s/XML_dynamic.asp?date_req1=%s&date_req2=%s&VAL_NM_RQ=%s",
		c.baseURL, domain.FormatDate(from), domain.FormatDate(to), cur.ID)
	if err := c.fetchXML(ctx, url, &dc); err != nil {
		return "", err
	}
	if len(dc.Records) == 0 {
		return NotPublishedText(domain.FormatDate(to)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Динамика %s (%s) с %s по %s:\n",
		cur.Name, cur.CharCode, domain.FormatDate(from), domain.FormatDate(to))
	for _, r := range dc.Records {
		fmt.Fprintf(&b, "%s: %s\n", r.Date, r.Value)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
