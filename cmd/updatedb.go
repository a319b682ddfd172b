package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"liquefier/internal/config"
	"liquefier/internal/model"
)

var (
	insertTestData bool
	testDataHours  int
)

var updateDBCommand = &cobra.Command{
	Use:   "updatedb",
	Short: "Create the history tables of the configured channels",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := config.InitConfig(configFile)
		if err != nil {
			logrus.Fatal("initConfig error, ", err.Error())
		}
		chs, err := conf.Channels()
		if err != nil {
			logrus.Fatal(err)
		}

		db, err := model.InitDB(conf.History.DB)
		if err != nil {
			logrus.Fatal("failed to init database", err)
		}
		defer model.CloseDB(db)

		var tables []model.HistoryTable
		for _, spec := range append(chs.LevelSpecs(), chs.FlowSpecs()...) {
			tables = mergeTable(tables, model.HistoryTable{
				Name:       spec.Table,
				TimeColumn: conf.History.TimeColumn,
				Columns:    spec.Columns,
			})
		}

		err = model.MigrateHistory(db, tables)
		if err != nil {
			logrus.Fatal("failed to migrate history tables", err)
		} else {
			logrus.Infof("History tables update successfully")
		}

		if insertTestData {
			err = model.InsertTestData(db, tables, model.TestDataOptions{
				End:      time.Now().Unix(),
				Duration: int64(testDataHours) * 3600,
				Step:     10,
			})
			if err != nil {
				logrus.Fatal("failed to insert test data", err)
			}
			logrus.Infof("inserted %d hours of test data", testDataHours)
		}
	},
}

// mergeTable adds t, joining the columns of a table listed twice.
func mergeTable(tables []model.HistoryTable, t model.HistoryTable) []model.HistoryTable {
	for i := range tables {
		if tables[i].Name == t.Name {
			tables[i].Columns = append(tables[i].Columns, t.Columns...)
			return tables
		}
	}
	return append(tables, t)
}

func init() {
	updateDBCommand.Flags().BoolVarP(&insertTestData, "insert-test-data", "t", false, "Insert test data")
	updateDBCommand.Flags().IntVar(&testDataHours, "test-data-hours", 24, "Hours of test data to insert")
}
