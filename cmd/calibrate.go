package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"liquefier/internal/rate"
	"liquefier/internal/render"
)

var (
	calStart string
	calEnd   string
	calOut   string
)

var calibrateCommand = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit a flow meter against the summed level rates of a reference period",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(configFile)
		if err != nil {
			logrus.Fatal("initConfig error, ", err.Error())
		}
		defer a.Close()

		cal := a.conf.Calibration
		if calStart == "" {
			calStart = cal.Start
		}
		if calEnd == "" {
			calEnd = cal.End
		}
		if calOut == "" {
			calOut = cal.Output
		}
		start, end, err := a.timeRange(calStart, calEnd, 0)
		if err != nil {
			logrus.Fatal(err)
		}

		ctx := context.Background()
		ld := a.loader()
		levels, err := ld.Load(ctx, a.channels.LevelSpecs(), start, end)
		if err != nil {
			logrus.Fatal(err)
		}
		flows, err := ld.Load(ctx, a.channels.FlowSpecs(), start, end)
		if err != nil {
			logrus.Fatal(err)
		}

		batch, err := rate.EstimateWindows(a.channels, levels, flows, rate.BatchOptions{
			Window:  int64(cal.Window.Seconds()),
			Correct: cal.Correct,
		})
		if err != nil {
			logrus.Fatal(err)
		}
		logrus.Infof("%d windows of %s", batch.Len(), cal.Window)

		c, err := rate.Calibrate(a.channels, batch, cal.Reference, cal.Levels)
		if err != nil {
			logrus.Fatal(err)
		}
		fmt.Println(c.String())

		if calOut != "" {
			if err := render.RenderCalibration(calOut, c, a.conf.Output.Width, a.conf.Output.Height); err != nil {
				logrus.Fatal(err)
			}
			logrus.Infof("calibration plot written to %s", calOut)
		}
	},
}

func init() {
	calibrateCommand.Flags().StringVar(&calStart, "start", "", "Reference period start, YYYY-MM-DD HH:MM local time")
	calibrateCommand.Flags().StringVar(&calEnd, "end", "", "Reference period end, YYYY-MM-DD HH:MM local time")
	calibrateCommand.Flags().StringVarP(&calOut, "output", "o", "", "PNG file for the scatter plot")
}
