// Package internal 實現了一個雙人即時遊戲會話中繼。
//
// 服務器把兩名客戶端配對進一個「房間」，追蹤回合歸屬，並在兩人之間
// 轉發遊戲事件（瞄準、擊球、球位、分數、聊天），完全不解讀遊戲物理。
//
// 核心：房間 / 會話協調器
//
// 同一套協調器語義同時服務兩種投遞模型：
//   - 推送傳輸：一條持久的 WebSocket 雙向通道，連線身份即投遞目標
//   - 輪詢傳輸：無狀態請求 / 回應，出站事件先進每玩家佇列，
//     由客戶端定期讀取（讀取原子地全取並清空）
//
// 無論哪種傳輸承載，回合順序、事件投遞、斷線處理的可觀察語義完全相同。
//
// 房間生命週期
//
// 創建（一人，槽位 1）→ 第二人加入（槽位 2，started=true，回合歸 1）→
// 回合交替對戰 → 再戰投票循環 → 玩家全部離開時銷毀。
// 房間碼為 6 碼無歧義字元（排除 0/O/1/I），在存活房間中全域唯一。
//
// 信任模型
//
// 服務器是啞中繼：不驗證球位、分數與勝負，信任客戶端回報，
// turn_end 先到先贏。唯一的服務器端裁決是 shoot 的回合限制。
//
// 資源回收
//
//   - 空房間清掃：固定週期移除零人房間（安全網）
//   - 佇列閒置回收：太久沒輪詢的玩家，佇列連同房間席位一併回收
//   - 佇列深度上限：超限丟最舊事件，拒絕無界增長
//
// 架構分層
//
//   - Room 層：會話狀態機與扇出規則
//   - Registry 層：房間碼映射、創建 / 查找 / 刪除 / 清掃
//   - Delivery 層：Sink 抽象 + 輪詢佇列倉庫
//   - 傳輸層：WebSocket Hub 與 HTTP Handler，各自把請求譯成核心操作
package internal
