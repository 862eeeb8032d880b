package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/models/reports"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/utils"
	"github.com/mmdatafocus/rta_backend/workflow"
)

func main() {
	investorID := flag.String("investor-id", "", "Investor id (required unless --folio is set)")
	folioNumber := flag.String("folio", "", "Optional: report a single folio")
	fy := flag.String("fy", "", "Optional: financial year, e.g. 2023-24. Defaults to the full history.")
	out := flag.String("out", "", "Output xlsx path (default capital_gains_<id>.xlsx)")
	upload := flag.Bool("upload", false, "Upload the workbook to GCS_BUCKET instead of writing a local file")
	signFor := flag.Duration("sign", 0, "With --upload: also print a signed download url valid for this long (max 168h)")
	noRedis := flag.Bool("no-redis", false, "Skip redis (report cache disabled)")
	flag.Parse()

	*investorID = strings.TrimSpace(*investorID)
	*folioNumber = strings.TrimSpace(*folioNumber)
	if *investorID == "" && *folioNumber == "" {
		fmt.Fprintln(os.Stderr, "--investor-id or --folio is required")
		os.Exit(1)
	}

	var period *models.DateRange
	if strings.TrimSpace(*fy) != "" {
		r, err := models.ParseFinancialYear(*fy)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		period = &r
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if !*noRedis {
		config.ConnectRedisWithRetry()
	}

	ctx := context.Background()
	services := workflow.NewServices(store.NewGormStore(db), config.GetLogger(), config.LoadEngineSettings(), nil)

	var result *workflow.InvestorCapitalGains
	name := *investorID
	if *folioNumber != "" {
		gains, err := services.CapitalGains.CalculateForFolio(ctx, *folioNumber, period)
		if err != nil {
			fmt.Fprintf(os.Stderr, "folio %s: %v\n", *folioNumber, err)
			os.Exit(1)
		}
		if *investorID != "" && gains.InvestorId != *investorID {
			fmt.Fprintf(os.Stderr, "folio %s does not belong to investor %s\n", *folioNumber, *investorID)
			os.Exit(1)
		}
		result = &workflow.InvestorCapitalGains{
			InvestorId:    gains.InvestorId,
			Period:        period,
			Folios:        []workflow.FolioCapitalGains{*gains},
			ShortTermGain: gains.ShortTermGain,
			LongTermGain:  gains.LongTermGain,
			TotalGain:     gains.TotalGain,
		}
		name = *folioNumber
	} else {
		var err error
		result, err = reports.InvestorCapitalGains(ctx, services.CapitalGains, *investorID, period)
		if err != nil {
			fmt.Fprintf(os.Stderr, "investor %s: %v\n", *investorID, err)
			os.Exit(1)
		}
	}

	fileName := strings.TrimSpace(*out)
	if fileName == "" {
		suffix := "all"
		if period != nil {
			suffix = period.From.Format("2006") + "-" + period.To.Format("06")
		}
		fileName = fmt.Sprintf("capital_gains_%s_%s.xlsx", name, suffix)
	}

	if *upload {
		data, err := reports.CapitalGainsXlsx(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "render workbook: %v\n", err)
			os.Exit(1)
		}
		object := fmt.Sprintf("reports/capital-gains/%s/%s", time.Now().UTC().Format("20060102"), filepath.Base(fileName))
		url, err := utils.UploadBytesToGCS(ctx, object, data, utils.XlsxContentType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(url)
		if *signFor > 0 {
			link, err := utils.SignDownload(ctx, object, *signFor)
			if err != nil {
				fmt.Fprintf(os.Stderr, "sign: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s (expires %s)\n", link.URL, link.ExpiresAt.UTC().Format(time.RFC3339))
		}
	} else {
		if err := reports.SaveCapitalGainsXlsx(result, fileName); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", fileName, err)
			os.Exit(1)
		}
		fmt.Println(fileName)
	}

	fmt.Printf("folios=%d short_term=%s long_term=%s total=%s\n",
		len(result.Folios), result.ShortTermGain.StringFixed(2), result.LongTermGain.StringFixed(2), result.TotalGain.StringFixed(2))
}
