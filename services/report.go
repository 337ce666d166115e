package services

import (
	"fmt"
	"sort"
	"strings"

	"iris-scraper/models"
	"iris-scraper/utils"
)

// ReportService turns a finished run into the console summary printed at
// the end.
type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Generate aggregates the stored catalog records and the details extracted
// this run into one report.
func (s *ReportService) Generate(records []*models.CatalogRecord, details []*models.DetailRecord) *models.RunReport {
	report := &models.RunReport{
		ProjectsByZone:   make(map[string]int),
		ProjectsByStatus: make(map[string]int),
		AssetsByClass:    make(map[string]int),
	}

	report.TotalProjects = len(records)
	for _, rec := range records {
		if rec.Zone != nil && *rec.Zone != "" {
			report.ProjectsByZone[*rec.Zone]++
		}
		if rec.Status != nil && *rec.Status != "" {
			report.ProjectsByStatus[*rec.Status]++
		}
		if rec.HasFlag(models.FlagLeyVP) {
			report.WithLeyVP++
		}
	}

	report.DetailsExtracted = len(details)

	var priced []float64
	for _, det := range details {
		report.TotalUnits += len(det.Units)
		for _, u := range det.Units {
			if u.RentAvailable {
				report.UnitsWithRent++
			}
			if u.PriceFrom == nil || *u.PriceFrom <= 0 {
				continue
			}
			priced = append(priced, *u.PriceFrom)
			if report.MostExpensive == nil || *u.PriceFrom > report.MostExpensive.PriceFrom {
				highlight := &models.UnitHighlight{
					ProjectKey: det.IdentityKey,
					PriceFrom:  *u.PriceFrom,
				}
				if u.Typology != nil {
					highlight.Typology = *u.Typology
				}
				report.MostExpensive = highlight
			}
		}
		for _, a := range det.Assets {
			report.AssetsByClass[a.Classification]++
		}
		if det.Issuer != nil && det.Issuer.Email != nil {
			report.IssuersWithEmail++
		}
	}

	if len(priced) > 0 {
		report.MinPriceFrom = priced[0]
		report.MaxPriceFrom = priced[0]
		var total float64
		for _, p := range priced {
			total += p
			if p < report.MinPriceFrom {
				report.MinPriceFrom = p
			}
			if p > report.MaxPriceFrom {
				report.MaxPriceFrom = p
			}
		}
		report.AvgPriceFrom = round2(total / float64(len(priced)))
		report.MinPriceFrom = round2(report.MinPriceFrom)
		report.MaxPriceFrom = round2(report.MaxPriceFrom)
	}

	return report
}

func (s *ReportService) Print(r *models.RunReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 IRIS CATALOG RUN REPORT\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Projects in catalog    : \033[1m%d\033[0m\n", r.TotalProjects)
	fmt.Printf("  Detail pages extracted : \033[1m%d\033[0m\n", r.DetailsExtracted)
	fmt.Printf("  Units collected        : \033[1m%d\033[0m\n", r.TotalUnits)
	fmt.Printf("  Ley VP projects        : \033[1m%d\033[0m\n", r.WithLeyVP)
	fmt.Printf("  Issuers with email     : \033[1m%d\033[0m\n", r.IssuersWithEmail)
	fmt.Println()

	// Unit prices
	fmt.Printf("\033[1;33m  Unit Prices (desde)\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if r.AvgPriceFrom > 0 {
		fmt.Printf("  Average price : \033[1;32m$%.2f\033[0m\n", r.AvgPriceFrom)
		fmt.Printf("  Minimum price : \033[1;32m$%.2f\033[0m\n", r.MinPriceFrom)
		fmt.Printf("  Maximum price : \033[1;32m$%.2f\033[0m\n", r.MaxPriceFrom)
	} else {
		fmt.Printf("  No unit price data available\n")
	}
	fmt.Println()

	if r.MostExpensive != nil {
		fmt.Printf("\033[1;33m  Most Expensive Unit\033[0m\n")
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  Project  : %s\n", r.MostExpensive.ProjectKey)
		if r.MostExpensive.Typology != "" {
			fmt.Printf("  Typology : %s\n", truncate(r.MostExpensive.Typology, 40))
		}
		fmt.Printf("  Price    : \033[1;31m$%.2f\033[0m\n", r.MostExpensive.PriceFrom)
		fmt.Println()
	}

	// Projects by zone
	fmt.Printf("\033[1;33m  Projects by Zone\033[0m\n")
	fmt.Printf("  %s\n", thin)
	printDistribution(r.ProjectsByZone)
	fmt.Println()

	// Assets by classification
	fmt.Printf("\033[1;33m  Assets by Classification\033[0m\n")
	fmt.Printf("  %s\n", thin)
	printDistribution(r.AssetsByClass)

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

// printDistribution renders a map as a descending bar list.
func printDistribution(counts map[string]int) {
	if len(counts) == 0 {
		fmt.Printf("  No data\n")
		return
	}
	type entry struct {
		name  string
		count int
	}
	var entries []entry
	for name, cnt := range counts {
		if name != "" {
			entries = append(entries, entry{name, cnt})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	for _, e := range entries {
		width := e.count
		if width > 40 {
			width = 40
		}
		bar := strings.Repeat("█", width)
		fmt.Printf("  %-30s %s (%d)\n", truncate(e.name, 28), bar, e.count)
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
