package banks

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Branch is one bank's office count in a city.
type Branch struct {
	Bank    string
	Offices int
}

// Scraper pulls city links and bank branch counts from 1000bankov.ru.
type Scraper struct {
	baseURL string
	http    *http.Client
}

func NewScraper(baseURL string) *Scraper {
	return &Scraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *Scraper) fetchDoc(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; currency-rate-bot)")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// Cities returns the city -> page URL map from the rates landing page.
func (s *Scraper) Cities(ctx context.Context) (map[string]string, error) {
	doc, err := s.fetchDoc(ctx, s.baseURL+"/kurs/")
	if err != nil {
		return nil, err
	}

	cities := map[string]string{}
	doc.Find("#geo__columns li a").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		href, ok := a.Attr("href")
		if name == "" || !ok {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = s.baseURL + href
		}
		cities[name] = href
	})
	return cities, nil
}

// Branches scrapes bank names and office counts from a city page.
// Blocks that cannot be parsed are skipped.
func (s *Scraper) Branches(ctx context.Context, cityURL string) ([]Branch, error) {
	doc, err := s.fetchDoc(ctx, cityURL)
	if err != nil {
		return nil, err
	}

	var out []Branch
	doc.Find("div.banks__item").Each(func(_ int, block *goquery.Selection) {
		name := strings.TrimSpace(block.Find("div.bank__title").First().Text())
		if name == "" {
			return
		}
		offices := 0
		info := strings.TrimSpace(block.Find("div.bank__info").First().Text())
		if strings.Contains(info, "отделен") {
			if fields := strings.Fields(info); len(fields) > 0 {
				if n, err := strconv.Atoi(fields[0]); err == nil {
					offices = n
				}
			}
		}
		out = append(out, Branch{Bank: name, Offices: offices})
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Offices > out[j].Offices })
	return out, nil
}

// FormatBranches renders the branch list as message text.
func FormatBranches(city string, branches []Branch) string {
	if len(branches) == 0 {
		return fmt.Sprintf("Банки в городе %s не найдены", city)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Банки в городе %s:\n", city)
	for _, br := range branches {
		fmt.Fprintf(&b, "%s — отделений: %d\n", br.Bank, br.Offices)
	}
	return strings.TrimRight(b.String(), "\n")
}
