package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"liquefier/internal/command"
	"liquefier/internal/rate"
)

var (
	renderStart string
	renderEnd   string
	renderWidth float64
	renderFn    string
	renderSigma float64
)

var renderCommand = &cobra.Command{
	Use:   "render",
	Short: "Recompute the production rate once and render the chart",
	Long: `Recompute the production rate once and render the chart.
Without --width the rates are smoothed by a gaussian of --sigma grid steps.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(configFile)
		if err != nil {
			logrus.Fatal("initConfig error, ", err.Error())
		}
		defer a.Close()

		start, end, err := a.timeRange(renderStart, renderEnd, a.conf.Pipeline.Lookback)
		if err != nil {
			logrus.Fatal(err)
		}

		sigma := a.conf.Pipeline.Sigma
		if cmd.Flags().Changed("sigma") {
			sigma = renderSigma
		}
		sm := rate.GaussianSigma(sigma)
		if cmd.Flags().Changed("width") {
			sm, err = command.ParseSmoothing(renderFn, renderWidth)
			if err != nil {
				logrus.Fatal(err)
			}
		}

		renderer, err := a.renderer()
		if err != nil {
			logrus.Fatal(err)
		}
		ctx := context.Background()
		res, err := a.pipeline().Run(ctx, start, end, sm)
		if err != nil {
			logrus.Fatal(err)
		}
		if err := renderer.Render(ctx, res); err != nil {
			logrus.Fatal(err)
		}
		if last, ok := res.Last(); ok {
			logrus.Infof("rendered %d rows up to %d to %s", res.Len(), last, renderer.Path())
		}
	},
}

func init() {
	renderCommand.Flags().StringVar(&renderStart, "start", "", "Range start, YYYY-MM-DD HH:MM local time (default end minus lookback)")
	renderCommand.Flags().StringVar(&renderEnd, "end", "", "Range end, YYYY-MM-DD HH:MM local time (default now)")
	renderCommand.Flags().Float64Var(&renderWidth, "width", 0, "Smoothing window in minutes")
	renderCommand.Flags().StringVar(&renderFn, "fn", "boxcar", `Smoothing kernel used with --width, e.g. 'gaussian;{"std":0.2}'`)
	renderCommand.Flags().Float64Var(&renderSigma, "sigma", 30, "Gaussian sigma in grid steps when --width is not given")
}
