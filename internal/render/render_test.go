package render

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kvtrace/keyloc/internal/model"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func testCharts() []*model.Chart {
	return []*model.Chart{
		{
			Statistic: model.StatAppearanceCDF,
			Kind:      model.ChartArea,
			Title:     "key_appearance_cdf",
			XLabel:    "key seq. 1-5;1-3",
			YLabel:    "percentage",
			XMax:      1,
			YMax:      1,
			Points:    []model.Point{{X: 1.0 / 3, Y: 0.2}, {X: 2.0 / 3, Y: 0.6}, {X: 1, Y: 1}},
		},
		{
			Statistic: model.StatAccessCount,
			Kind:      model.ChartScatter,
			Title:     "key_access_count",
			XMax:      3,
			YMax:      2,
			Points:    []model.Point{{X: 0, Y: 2}, {X: 1, Y: 2}, {X: 2, Y: 1}},
		},
		{
			Statistic: model.StatTimeSeries,
			Kind:      model.ChartCells,
			Title:     "key_time_series",
			XLabel:    "time. 1-5;1-3",
			YLabel:    "key seq",
			XMax:      5,
			YMax:      3,
			Cells:     []model.Cell{{Time: 0, Key: 0}, {Time: 1, Key: 1}, {Time: 3, Key: 2}},
		},
		{
			Statistic: model.StatReusePeriod,
			Kind:      model.ChartLine,
			Title:     "key_reuse_period",
			XLabel:    "time. 1-5;1-3",
			YLabel:    "count",
			XMax:      3,
			YMax:      3,
			XTicks:    []model.Tick{{Value: 0, Label: "0"}, {Value: 1, Label: "2"}, {Value: 2, Label: "4"}, {Value: 3, Label: "4097"}},
			Points:    []model.Point{{X: 1, Y: 0}, {X: 2, Y: 2}, {X: 3, Y: 0}},
		},
	}
}

func TestPNG_Render(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := NewPNG(dir, 320, 240)

	for _, chart := range testCharts() {
		t.Run(string(chart.Statistic), func(t *testing.T) {
			paths, err := r.Render(context.Background(), chart)
			require.NoError(t, err)
			require.Equal(t, []string{filepath.Join(dir, chart.Statistic.FileName())}, paths)

			data, err := os.ReadFile(paths[0])
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, pngMagic), "output is not a PNG")
		})
	}
}

func TestPNG_EmptySeries(t *testing.T) {
	r := NewPNG(t.TempDir(), 200, 100)
	paths, err := r.Render(context.Background(), &model.Chart{Statistic: model.StatLocalityOverTime, Kind: model.ChartLine})
	require.NoError(t, err)
	assert.FileExists(t, paths[0])
}

func TestPNG_UnknownKind(t *testing.T) {
	r := NewPNG(t.TempDir(), 200, 100)
	_, err := r.Render(context.Background(), &model.Chart{Statistic: model.StatTimeSpan, Kind: "pie"})
	assert.Error(t, err)
}

func TestPNG_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewPNG(t.TempDir(), 200, 100)
	_, err := r.Render(ctx, testCharts()[0])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestXLSX_RenderAndFlush(t *testing.T) {
	dir := t.TempDir()
	x := NewXLSX(dir)

	for _, chart := range testCharts() {
		paths, err := x.Render(context.Background(), chart)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, WorkbookName)}, paths)
	}
	require.NoError(t, x.Flush())

	f, err := excelize.OpenFile(x.Path())
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{
		string(model.StatAppearanceCDF),
		string(model.StatAccessCount),
		string(model.StatTimeSeries),
		string(model.StatReusePeriod),
	}, f.GetSheetList())

	rows, err := f.GetRows(string(model.StatTimeSeries))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"time. 1-5;1-3", "key seq"}, rows[0])
	assert.Equal(t, []string{"3", "2"}, rows[3])

	rows, err = f.GetRows(string(model.StatReusePeriod))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"time. 1-5;1-3", "count", "x_tick"}, rows[0])
	assert.Equal(t, []string{"2", "2", "4"}, rows[2])

	rows, err = f.GetRows(string(model.StatAppearanceCDF))
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestXLSX_SplitsLongSeries(t *testing.T) {
	defer func(n int) { sheetRows = n }(sheetRows)
	sheetRows = 3

	chart := &model.Chart{
		Statistic: model.StatTimeSeries,
		Kind:      model.ChartCells,
		XLabel:    "time",
		YLabel:    "key seq",
	}
	for i := uint64(0); i < 5; i++ {
		chart.Cells = append(chart.Cells, model.Cell{Time: i, Key: i})
	}
	empty := &model.Chart{Statistic: model.StatLocalityOverTime, Kind: model.ChartLine, XLabel: "time", YLabel: "unique ratio"}

	x := NewXLSX(t.TempDir())
	_, err := x.Render(context.Background(), chart)
	require.NoError(t, err)
	_, err = x.Render(context.Background(), empty)
	require.NoError(t, err)
	require.NoError(t, x.Flush())

	f, err := excelize.OpenFile(x.Path())
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{
		"key_time_series",
		"key_time_series_2",
		"key_time_series_3",
		"key_uniqueness_over_time",
	}, f.GetSheetList())

	wantRows := map[string][][]string{
		"key_time_series":          {{"time", "key seq"}, {"0", "0"}, {"1", "1"}},
		"key_time_series_2":        {{"time", "key seq"}, {"2", "2"}, {"3", "3"}},
		"key_time_series_3":        {{"time", "key seq"}, {"4", "4"}},
		"key_uniqueness_over_time": {{"time", "unique ratio"}},
	}
	for sheet, want := range wantRows {
		rows, err := f.GetRows(sheet)
		require.NoError(t, err)
		assert.Equal(t, want, rows, sheet)
	}
}

func TestXLSX_FlushWithoutCharts(t *testing.T) {
	x := NewXLSX(t.TempDir())
	require.NoError(t, x.Flush())
	assert.NoFileExists(t, x.Path())
}

type stubRenderer struct {
	name    string
	err     error
	flushed int
	charts  int
}

func (s *stubRenderer) Render(ctx context.Context, chart *model.Chart) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.charts++
	return []string{s.name + "/" + chart.Statistic.FileName()}, nil
}

func (s *stubRenderer) Name() string { return s.name }

func (s *stubRenderer) Flush() error {
	s.flushed++
	return nil
}

func TestMulti(t *testing.T) {
	a, b := &stubRenderer{name: "a"}, &stubRenderer{name: "b"}
	m := Multi{a, b}

	paths, err := m.Render(context.Background(), testCharts()[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"a/key_access_count.png", "b/key_access_count.png"}, paths)

	require.NoError(t, m.Flush())
	assert.Equal(t, 1, a.flushed)
	assert.Equal(t, 1, b.flushed)
}

func TestMulti_StopsOnError(t *testing.T) {
	boom := errors.New("disk full")
	a, b, c := &stubRenderer{name: "a"}, &stubRenderer{name: "b", err: boom}, &stubRenderer{name: "c"}

	paths, err := Multi{a, b, c}.Render(context.Background(), testCharts()[0])
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a/key_appearance_cdf.png"}, paths)
	assert.Zero(t, c.charts)
}
