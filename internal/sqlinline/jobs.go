package sqlinline

const QInsertJob = `--sql 4195f71d-5b61-4cf1-8aa6-4c6d5270a1f7
insert into jobs(
  id,
  job_type,
  model_id,
  auth_mode,
  status,
  cancel_requested,
  progress,
  status_message,
  params_json,
  created_at
) values (?, ?, ?, ?, 'queued', 0, null, null, ?, ?);
`

const QSelectJobByID = `--sql bbed3d37-f4b3-4dc3-b7a0-fa6340d1b64e
select
  id, job_type, model_id, auth_mode, status, cancel_requested, progress,
  status_message, params_json, result_json, error_message, error_detail,
  created_at, started_at, finished_at
from jobs
where id = ?
limit 1;
`

const QListJobs = `--sql 49ee9180-b798-44b1-9373-ed59db9dc281
select
  id, job_type, model_id, auth_mode, status, cancel_requested, progress,
  status_message, params_json, result_json, error_message, error_detail,
  created_at, started_at, finished_at
from jobs
where (?1 = '' or status = ?1)
  and (?2 = '' or job_type = ?2)
  and (?3 = '' or model_id = ?3)
order by created_at desc, id desc
limit ?4 offset ?5;
`

const QListJobsByStatusOldest = `--sql 33ab8001-8f48-42f4-b502-4451a05a2152
select
  id, job_type, model_id, auth_mode, status, cancel_requested, progress,
  status_message, params_json, result_json, error_message, error_detail,
  created_at, started_at, finished_at
from jobs
where status = ?1
order by created_at asc, id asc
limit ?2 offset ?3;
`

// QSetJobStatus never rewrites a terminal row.
const QSetJobStatus = `--sql 131f9dc0-b0a1-4d8e-a01a-3d01f63e755f
update jobs
set status = ?2,
    status_message = ?3,
    started_at = case when ?2 = 'running' then coalesce(started_at, ?4) else started_at end,
    finished_at = case when ?2 in ('succeeded', 'failed', 'canceled') then ?4 else finished_at end
where id = ?1
  and status not in ('succeeded', 'failed', 'canceled');
`

const QTransitionJobStatus = `--sql 03d3b50b-707c-4f53-9506-b3c8b00f1b2b
update jobs
set status = ?3,
    status_message = coalesce(?4, status_message),
    started_at = case when ?3 = 'running' then coalesce(started_at, ?5) else started_at end,
    finished_at = case when ?3 in ('succeeded', 'failed', 'canceled') then ?5 else finished_at end
where id = ?1
  and status = ?2;
`

const QSetJobSucceeded = `--sql bcdab85c-82c5-48c3-b221-5d104370a08e
update jobs
set status = 'succeeded',
    progress = 1.0,
    result_json = ?2,
    error_message = null,
    error_detail = null,
    finished_at = ?3
where id = ?1
  and status = 'running';
`

const QSetJobFailed = `--sql 676aa777-546a-47db-a72c-8341cd75714e
update jobs
set status = 'failed',
    result_json = null,
    error_message = ?2,
    error_detail = ?3,
    finished_at = ?4
where id = ?1
  and status = 'running';
`

const QRequestJobCancel = `--sql c0ae7fd8-56f2-4bce-9862-bfadc0e46d74
update jobs
set cancel_requested = 1
where id = ?1
  and status in ('queued', 'running');
`

const QJobExists = `--sql 545cfd37-3212-4d20-99f5-642f4f7ff6b9
select count(1) from jobs where id = ?;
`
