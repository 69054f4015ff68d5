package goated

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"GoatedVips/internal/config"
	"GoatedVips/internal/interfaces"
	"GoatedVips/internal/model"
	"GoatedVips/internal/utils/httpclient"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Adapter Goated平台统计源适配器：拉取联盟排行榜并规整为四窗口榜单
type Adapter struct {
	cfg        *config.GoatedConfig
	httpClient *http.Client
	logger     *logrus.Logger
	newBackOff func() backoff.BackOff // 测试时注入小间隔退避
}

func NewGoatedAdapter(cfg *config.GoatedConfig, logger *logrus.Logger) interfaces.StatsFetcher {
	a := &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
	a.newBackOff = func() backoff.BackOff {
		// 基准1秒、2倍递增、上限30秒，重试次数由配置控制
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.Multiplier = 2
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = 0
		return backoff.WithMaxRetries(b, uint64(cfg.RetryCount))
	}
	return a
}

// ========== 实现StatsFetcher接口 ==========

// GetName 平台名称
func (a *Adapter) GetName() string {
	return "Goated"
}

// FetchLeaderboard 拉取排行榜，失败按指数退避重试，重试额度用尽后报错
func (a *Adapter) FetchLeaderboard(ctx context.Context) (*model.LeaderboardPayload, error) {
	var payload *model.LeaderboardPayload
	attempt := 0
	op := func() error {
		attempt++
		p, err := a.fetchOnce(ctx)
		if err != nil {
			a.logger.WithError(err).WithField("attempt", attempt).Warn("拉取Goated排行榜失败，准备重试")
			return err
		}
		payload = p
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(a.newBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("拉取Goated排行榜失败（共尝试%d次）: %w", attempt, err)
	}

	a.logger.Infof("成功获取Goated排行榜，共%d个玩家", payload.TotalUsers)
	return payload, nil
}

// fetchOnce 单次请求+解析
func (a *Adapter) fetchOnce(ctx context.Context) (*model.LeaderboardPayload, error) {
	url := a.cfg.BaseURL + a.cfg.LeaderboardPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求Goated接口失败: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Errorf("关闭Goated响应体失败: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Goated接口返回异常状态码: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取Goated响应失败: %w", err)
	}
	entries, err := model.DecodeGoatedEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("解析Goated响应失败: %w", err)
	}

	return buildPayload(entries, time.Now()), nil
}

// buildPayload 原始条目 -> 四窗口榜单。
// 规整规则：缺少wagered对象的整条丢弃；缺失窗口按0补齐；负数钳为0；
// 空显示名落为Anonymous；各窗口剔除0投注行后按该窗口金额降序（稳定排序）。
func buildPayload(entries []model.GoatedEntry, now time.Time) *model.LeaderboardPayload {
	users := make([]model.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if e.Wagered == nil {
			continue // 外部数据质量问题，不视为错误
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = "Anonymous"
		}
		users = append(users, model.LeaderboardEntry{
			UID:  e.UID,
			Name: name,
			Wagered: model.WagerData{
				Today:     clampNonNegative(e.Wagered.Today),
				ThisWeek:  clampNonNegative(e.Wagered.ThisWeek),
				ThisMonth: clampNonNegative(e.Wagered.ThisMonth),
				AllTime:   clampNonNegative(e.Wagered.AllTime),
			},
		})
	}

	return &model.LeaderboardPayload{
		TotalUsers:  len(users),
		LastUpdated: now,
		Today:       rankPeriod(users, model.PeriodToday),
		Weekly:      rankPeriod(users, model.PeriodWeekly),
		Monthly:     rankPeriod(users, model.PeriodMonthly),
		AllTime:     rankPeriod(users, model.PeriodAllTime),
	}
}

// rankPeriod 单窗口榜单：剔除0投注行，按金额降序，金额相同保持原始顺序
func rankPeriod(users []model.LeaderboardEntry, key model.PeriodKey) []model.LeaderboardEntry {
	out := make([]model.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		if u.Amount(key) > 0 {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount(key) > out[j].Amount(key)
	})
	return out
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
