package domain

import "time"

const (
	// VideoLimitMinInterval is the minimum time between video limit warnings.
	VideoLimitMinInterval = 5 * 24 * time.Hour

	// VideoLimitMinRatio is the share of the video limit that must be used
	// before site owners are warned.
	VideoLimitMinRatio = 0.66

	// VideoLimitMinChangeRatio is the share of the remaining headroom that must
	// be used up since the last warning before warning again. With 0.5, half of
	// the videos left at the last warning must be consumed.
	VideoLimitMinChangeRatio = 0.5

	// FreeTrialWarningWindow is how long before the end of the free trial the
	// site owners are warned.
	FreeTrialWarningWindow = 5 * 24 * time.Hour
)

// NotificationKind names a throttled site-owner notification.
type NotificationKind string

const (
	NotificationWelcome         NotificationKind = "welcome"
	NotificationVideoLimit      NotificationKind = "video_limit"
	NotificationFreeTrialEnding NotificationKind = "free_trial"
)

// WelcomeDue reports whether the welcome notification has yet to be sent.
func WelcomeDue(info *SiteTierInfo) bool {
	return info.WelcomeEmailSent == nil
}

// VideoLimitWarningDue decides whether the owners should be warned that the
// site is approaching its video limit. It returns the usage ratio it computed
// (zero when a guard fires before the ratio is known).
func VideoLimitWarningDue(info *SiteTierInfo, activeVideos int64, now time.Time) (float64, bool) {
	// A zero limit has no usage ratio to report.
	if info.Tier.VideoLimit == nil || *info.Tier.VideoLimit <= 0 {
		return 0, false
	}

	last := info.VideoLimitWarningSent
	if last != nil && now.Sub(*last) < VideoLimitMinInterval {
		return 0, false
	}

	limit := float64(*info.Tier.VideoLimit)
	ratio := float64(activeVideos) / limit
	if ratio < VideoLimitMinRatio {
		return ratio, false
	}

	if info.VideoCountWhenWarned != nil {
		oldRatio := float64(*info.VideoCountWhenWarned) / limit
		nextRatio := oldRatio + VideoLimitMinChangeRatio*(1-oldRatio)
		if ratio < nextRatio {
			return ratio, false
		}
	}

	return ratio, true
}

// FreeTrialEndingDue reports whether now falls strictly inside the warning
// window before the trial ends and no warning was sent yet. There is only
// one free trial, so the warning fires at most once.
func FreeTrialEndingDue(info *SiteTierInfo, now time.Time) bool {
	if info.FreeTrialEndingSent != nil {
		return false
	}

	end := info.FreeTrialEnd()
	if end == nil {
		return false
	}

	warnAfter := end.Add(-FreeTrialWarningWindow)
	return now.After(warnAfter) && now.Before(*end)
}
