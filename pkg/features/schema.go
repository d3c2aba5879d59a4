package features

// Raw columns accepted from the sample source. The first name of each pair is
// canonical; the second is an accepted alias.
const (
	ColServer      = "ip"
	ColServerAlias = "server_id"
	ColTimestamp   = "timestamp"
	ColPlayers     = "playerCount"
	ColPlayerAlias = "player_count"
)

// Derived columns.
const (
	ColDate          = "data"
	ColHour          = "hora"
	ColMinute        = "minuto"
	ColWeekday       = "dia_da_semana"
	ColWeekend       = "final_de_semana"
	ColDelta         = "var_jogadores"
	ColPctChange     = "pct_var_jogadores"
	ColRollingMean10 = "media_movel_10"
	ColRollingMean30 = "media_movel_30"
	ColRollingStd30  = "desvio_movel_30"
	ColNetworkTotal  = "total_jogadores"
	ColNetworkShare  = "proporcao_rede"
	ColPeak          = "flag_pico"
	ColSuddenDrop    = "queda_abrupta"
	ColRecovery      = "recuperacao"
	ColPeriod        = "periodo_dia"
	ColInterval      = "intervalo_segundos"
	ColServerCode    = "server_code"
	ColServerHour    = "servidor_hora"
)

// ModelColumns are the five modeling features, in the order estimators see them.
var ModelColumns = []string{
	ColHour,
	ColWeekend,
	ColRollingMean10,
	ColNetworkShare,
	ColPctChange,
}

// TargetColumn is the regression target.
const TargetColumn = ColPlayers

// Legend describes each modeling feature for report consumers.
var Legend = map[string]string{
	ColHour:          "Hora do dia (0–23)",
	ColWeekend:       "Indicador se é fim de semana (0=Não, 1=Sim)",
	ColRollingMean10: "Média móvel de jogadores nas últimas 10 janelas",
	ColNetworkShare:  "Proporção de jogadores no cluster em relação à rede total (0–1)",
	ColPctChange:     "Variação percentual de jogadores em relação ao período anterior",
}

// Thresholds used by the event flags.
const (
	PeakPercentile    = 95.0
	SuddenDropPercent = -20.0
	RecoveryPercent   = 20.0
	ShortWindow       = 10
	LongWindow        = 30
)
